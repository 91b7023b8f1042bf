package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/meditreat/meditreat/internal/turn"
)

// wsSink writes each piece as a text frame.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Send(ctx context.Context, text string) error {
	return s.conn.Write(ctx, websocket.MessageText, []byte(text))
}

// handleWebSocket serves /ws/chat. Every inbound text frame is one chat
// request; turns on a connection run one after another.
func (g *Gateway) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		conn.SetReadLimit(g.config.MaxBodyBytes)
		defer func() {
			_ = conn.CloseNow()
		}()

		if m := g.deps.Metrics; m != nil {
			m.ConnOpened()
			defer m.ConnClosed()
		}

		ctx := r.Context()
		sink := wsSink{conn: conn}
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					g.logger.Debug("websocket read ended", "error", err)
				}
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			if !g.serveFrame(ctx, sink, data) {
				_ = conn.Close(websocket.StatusGoingAway, "")
				return
			}
		}
	}
}

// serveFrame runs one turn for a frame. It reports false when the
// connection is no longer usable.
func (g *Gateway) serveFrame(ctx context.Context, sink wsSink, data []byte) bool {
	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return sink.Send(ctx, turn.ErrorPrefix+turn.ValidationText) == nil
	}
	if !g.allow(req.UserID) {
		return sink.Send(ctx, turn.ErrorPrefix+rateLimitedText) == nil
	}

	_, err := g.deps.Turns.Stream(ctx, req.turn(), sink)
	switch {
	case err == nil:
		return true
	case errors.Is(err, turn.ErrTransport):
		g.logger.Info("websocket client went away mid-turn", "error", err)
		return false
	default:
		if !errors.Is(err, turn.ErrValidation) {
			g.logger.Error("websocket turn failed", "error", err)
		}
		return sink.Send(ctx, turn.ErrorPrefix+turn.ClientError(err)) == nil
	}
}
