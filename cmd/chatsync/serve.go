package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adi-253/chatsync/internal/handlers"
	"github.com/adi-253/chatsync/internal/realtime"
	"github.com/adi-253/chatsync/internal/store"
	"github.com/adi-253/chatsync/internal/supabase"
	"github.com/adi-253/chatsync/internal/websocket"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	var hub *websocket.Hub
	eng, err := newEngine(func(level store.NoticeLevel, text string) {
		if hub != nil {
			hub.Notify(level, text)
		}
	})
	if err != nil {
		return err
	}
	log := eng.log
	st := eng.store
	defer st.Close()

	hub = websocket.NewHub(st, log)
	feed := supabase.NewRealtime(eng.cfg, log)
	bridge := realtime.NewBridge(feed, st, log, eng.metrics)
	defer bridge.Close()

	// conversation changes coalesce into one pending resync
	resync := make(chan struct{}, 1)
	st.OnChange(func(c store.Change) {
		hub.HandleChange(c)
		if c.Kind != store.ChangeConversations {
			return
		}
		select {
		case resync <- struct{}{}:
		default:
		}
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", eng.cfg.ServerPort),
		Handler:           newRouter(eng, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return eng.sweeper.Run(ctx) })
	g.Go(func() error { return feed.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-resync:
				ids := make([]string, 0)
				for _, c := range st.Conversations() {
					ids = append(ids, c.ID)
				}
				if err := bridge.SyncConversations(ctx, ids); err != nil {
					log.Warn().Err(err).Msg("resync subscriptions")
				}
			}
		}
	})
	g.Go(func() error {
		if err := st.LoadConversations(ctx); err != nil {
			log.Error().Err(err).Msg("initial conversation load")
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("chatsync local API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("chatsync stopped")
	return err
}

func newRouter(eng *engine, hub *websocket.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	eng.log.Info().Strs("origins", eng.cfg.CORSOrigins).Msg("CORS allowed origins")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   eng.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.HealthCheck(eng.store))
	r.Handle("/metrics", handlers.Metrics(eng.registry))
	r.Get("/ws/{id}", websocket.NewHandler(hub, eng.session).ServeWS)
	handlers.Mount(r, eng.store, eng.session)
	return r
}
