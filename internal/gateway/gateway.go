// Package gateway serves the chat API over HTTP and websockets.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/meditreat/meditreat/internal/metrics"
	"github.com/meditreat/meditreat/internal/security"
	"github.com/meditreat/meditreat/internal/turn"
	"github.com/meditreat/meditreat/pkg/message"
)

// Turns runs chat turns.
type Turns interface {
	Run(ctx context.Context, req turn.Request) (turn.Result, error)
	Stream(ctx context.Context, req turn.Request, sink turn.Sink) (turn.Result, error)
}

// History reads and clears stored conversations.
type History interface {
	Retrieve(ctx context.Context, userID, chatID, query string, limit int) []message.Message
	Clear(ctx context.Context, userID, chatID string) bool
}

// ProviderStatus reports provider health by name.
type ProviderStatus interface {
	Status() map[string]string
}

// Deps are the services the gateway exposes. Turns is required.
type Deps struct {
	Turns     Turns
	History   History
	Providers ProviderStatus
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Gateway is the HTTP server.
type Gateway struct {
	config  Config
	deps    Deps
	limiter *security.RateLimiter
	logger  *slog.Logger
	server  *http.Server
}

// New creates a Gateway. Call Start to listen.
func New(cfg Config, deps Deps) *Gateway {
	cfg.Defaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{
		config:  cfg,
		deps:    deps,
		limiter: security.NewRateLimiter(cfg.MessagesPerMinute),
		logger:  logger.With("component", "gateway"),
	}
}

// Validate checks the bind address.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	return nil
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.Handler(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		IdleTimeout:  g.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(ctx)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
