package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/turn"
	"github.com/meditreat/meditreat/pkg/message"
)

// ChatRequest is the inbound payload of POST /chat and of each websocket
// text frame.
type ChatRequest struct {
	UserID      string   `json:"user_id"`
	ChatID      string   `json:"chat_id"`
	Message     string   `json:"message"`
	Username    string   `json:"username,omitempty"`
	LLM         string   `json:"llm,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func (c ChatRequest) turn() turn.Request {
	return turn.Request{
		UserID:      c.UserID,
		ChatID:      c.ChatID,
		Message:     c.Message,
		Username:    c.Username,
		LLM:         c.LLM,
		Temperature: c.Temperature,
	}
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Message   string            `json:"message"`
	UserID    string            `json:"user_id"`
	Timestamp string            `json:"timestamp"`
	Sources   []provider.Source `json:"sources,omitempty"`
}

const rateLimitedText = "Too many messages, please slow down."

// allow charges userID's message budget. Requests without a user are not
// charged; the turn rejects them.
func (g *Gateway) allow(userID string) bool {
	if strings.TrimSpace(userID) == "" {
		return true
	}
	return g.limiter.Allow(userID) == nil
}

func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: turn.ValidationText})
			return
		}

		if !g.allow(req.UserID) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: rateLimitedText})
			return
		}

		res, err := g.deps.Turns.Run(r.Context(), req.turn())
		switch {
		case errors.Is(err, turn.ErrValidation):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: turn.ClientError(err)})
			return
		case err != nil:
			g.logger.Error("chat turn failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: turn.ClientError(err)})
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{
			Message:   res.Reply,
			UserID:    res.UserID,
			Timestamp: res.Timestamp.Format(message.TimeLayout),
			Sources:   res.Sources,
		})
	}
}

