package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler returns the chi mux with all routes wired.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth())
	r.Post("/chat", g.handleChat())
	r.Get("/ws/chat", g.handleWebSocket())

	if g.deps.Metrics != nil {
		r.Handle("/metrics", g.deps.Metrics.Handler())
	}

	if g.config.AdminToken != "" && g.deps.History != nil {
		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(g.config.AdminToken))
			r.Get("/api/chats/{user_id}/{chat_id}/messages", g.handleHistory())
			r.Delete("/api/chats/{user_id}/{chat_id}", g.handleClear())
		})
	}

	return r
}
