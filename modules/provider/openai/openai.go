// Package openai adapts OpenAI-compatible Chat Completions endpoints to the
// provider interface, with buffered and SSE streaming completions.
package openai

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/meditreat/meditreat/internal/provider"
)

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)

// Provider talks to one Chat Completions endpoint.
type Provider struct {
	config Config
	keys   provider.KeySource
	logger *slog.Logger

	// client bounds whole exchanges by Config.Timeout. streamClient has no
	// timeout because SSE bodies stay open for the full generation;
	// cancellation comes from the request context.
	client       *http.Client
	streamClient *http.Client
}

// New builds a Provider. keys supplies the bearer token per request so a
// rotating AuthProfile takes effect without rebuilding the client.
func New(cfg Config, keys provider.KeySource, logger *slog.Logger) (*Provider, error) {
	if keys == nil {
		return nil, errors.New("provider.openai: api key source is required")
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		config:       cfg,
		keys:         keys,
		logger:       logger.With("provider", "openai", "model", cfg.Model),
		client:       &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}, nil
}

// ContextWindowSize returns the model's token window.
func (p *Provider) ContextWindowSize() int { return p.config.ContextWindow }

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string { return p.config.Model }
