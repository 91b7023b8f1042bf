// Package anthropic adapts the Anthropic Messages API to the provider
// interface using the official SDK.
package anthropic

import (
	"context"
	"errors"
	"log/slog"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/meditreat/meditreat/internal/provider"
)

// Interface guards.
var (
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
)

// Anthropic implements provider.Provider over the Messages API.
type Anthropic struct {
	config Config
	keys   provider.KeySource
	client sdk.Client
	logger *slog.Logger
}

// New builds an Anthropic provider. The API key is read from keys on every
// request so rotation applies immediately.
func New(cfg Config, keys provider.KeySource, logger *slog.Logger) (*Anthropic, error) {
	if keys == nil {
		return nil, errors.New("provider.anthropic: api key source is required")
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// The chain owns retries and failover.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		config: cfg,
		keys:   keys,
		client: sdk.NewClient(opts...),
		logger: logger.With("provider", "anthropic", "model", cfg.Model),
	}, nil
}

// Complete sends a buffered Messages request.
func (a *Anthropic) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	msg, err := a.client.Messages.New(ctx, a.params(req),
		option.WithAPIKey(a.keys.CurrentKey()),
		option.WithRequestTimeout(a.config.Timeout),
	)
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}
	return fromMessage(msg), nil
}

// HealthCheck sends a one-token request; the API has no cheaper probe.
func (a *Anthropic) HealthCheck(ctx context.Context) error {
	_, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.config.Model),
		MaxTokens: 1,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock("ping"))},
	}, option.WithAPIKey(a.keys.CurrentKey()), option.WithRequestTimeout(a.config.Timeout))
	return mapError(err)
}

// ContextWindowSize returns the model's token window.
func (a *Anthropic) ContextWindowSize() int { return a.config.ContextWindow }

// ModelName returns the configured model.
func (a *Anthropic) ModelName() string { return a.config.Model }
