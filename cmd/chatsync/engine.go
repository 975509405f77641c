package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/adi-253/chatsync/internal/config"
	"github.com/adi-253/chatsync/internal/identity"
	"github.com/adi-253/chatsync/internal/logger"
	"github.com/adi-253/chatsync/internal/metrics"
	"github.com/adi-253/chatsync/internal/store"
	"github.com/adi-253/chatsync/internal/supabase"
	"github.com/adi-253/chatsync/internal/sweeper"
)

// notifyFunc adapts a function to store.Notifier.
type notifyFunc func(store.NoticeLevel, string)

func (f notifyFunc) Notify(level store.NoticeLevel, text string) { f(level, text) }

// engine is the set of components both commands run on.
type engine struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	session  *identity.Session
	client   *supabase.Client
	store    *store.Store
	sweeper  *sweeper.Sweeper
}

func newEngine(notify func(store.NoticeLevel, string)) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	session := identity.NewSession(cfg.UserID)
	client := supabase.NewClient(cfg, log)

	noticeLog := log.With().Str("component", "notice").Logger()
	st := store.New(store.Options{
		Remote:   client,
		Identity: session,
		Uploader: client,
		Notifier: notifyFunc(func(level store.NoticeLevel, text string) {
			noticeLog.Info().Str("level", string(level)).Msg(text)
			if notify != nil {
				notify(level, text)
			}
		}),
		Log:           log,
		Metrics:       m,
		PageSize:      cfg.MessagePageSize,
		TypingTimeout: cfg.TypingTimeout,
	})
	sw := sweeper.New(st, cfg.ExpiryTick, log)
	st.SetScheduler(sw)

	return &engine{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  m,
		session:  session,
		client:   client,
		store:    st,
		sweeper:  sw,
	}, nil
}
