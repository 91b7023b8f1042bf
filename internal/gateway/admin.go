package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meditreat/meditreat/pkg/message"
)

const maxHistoryLimit = 100

// handleHistory returns stored messages of a chat, oldest first. The
// optional q parameter ranks matching messages first.
func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxHistoryLimit {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 100"})
				return
			}
			limit = n
		}

		msgs := g.deps.History.Retrieve(r.Context(),
			chi.URLParam(r, "user_id"),
			chi.URLParam(r, "chat_id"),
			r.URL.Query().Get("q"),
			limit,
		)
		if msgs == nil {
			msgs = []message.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// handleClear deletes every message of a chat.
func (g *Gateway) handleClear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cleared := g.deps.History.Clear(r.Context(), chi.URLParam(r, "user_id"), chi.URLParam(r, "chat_id"))
		status := http.StatusOK
		if !cleared {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]bool{"cleared": cleared})
	}
}
