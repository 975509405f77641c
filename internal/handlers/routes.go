package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Mount registers the /api routes on r.
func Mount(r chi.Router, engine Engine, session Session) {
	conversations := NewConversationHandler(engine, session)
	messages := NewMessageHandler(engine)
	sessions := NewSessionHandler(engine, session)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", sessions.Get)
		r.Post("/session", sessions.SignIn)
		r.Delete("/session", sessions.SignOut)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversations.ListConversations)
			r.Post("/", conversations.CreateChat)
			r.Post("/refresh", conversations.RefreshConversations)
			r.Delete("/{id}", conversations.DeleteChat)
			r.Get("/{id}/messages", conversations.GetMessages)
			r.Post("/{id}/messages", conversations.SendMessage)
			r.Delete("/{id}/messages/{localID}", conversations.DiscardMessage)
			r.Post("/{id}/refresh", conversations.RefreshMessages)
			r.Get("/{id}/timeline", conversations.Timeline)
			r.Post("/{id}/typing", conversations.Typing)
			r.Post("/{id}/polls", conversations.CreatePoll)

			pin := conversations.PinChat()
			r.Post("/{id}/pin", pin)
			r.Delete("/{id}/pin", pin)
			mute := conversations.MuteChat()
			r.Post("/{id}/mute", mute)
			r.Delete("/{id}/mute", mute)
		})
		r.Route("/messages/{id}", func(r chi.Router) {
			r.Patch("/", messages.Edit)
			r.Delete("/", messages.Delete)
			r.Post("/reactions", messages.AddReaction)
			r.Delete("/reactions/{emoji}", messages.RemoveReaction)
			r.Post("/pin", messages.Pin)
			r.Delete("/pin", messages.Pin)
			r.Post("/star", messages.Star)
			r.Delete("/star", messages.Star)
		})
		r.Post("/polls/{id}/votes", messages.Vote)
	})
}
