package agent

import (
	"context"
	"log/slog"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/tool"
)

// Augmented is a provider.Provider whose answers may consult tools.
// Complete reports the documents tools visited in CompletionResponse.Sources.
type Augmented struct {
	loop *Loop
	base provider.Provider
}

var _ provider.Provider = (*Augmented)(nil)

// Augment wraps base so every request runs through a tool loop over registry.
func Augment(base provider.Provider, registry *tool.Registry, cfg LoopConfig, logger *slog.Logger) *Augmented {
	return &Augmented{loop: NewLoop(base, registry, cfg, logger), base: base}
}

// Wrapper returns a function that augments providers with the same tools
// and limits, for callers that pick their provider per request.
func Wrapper(registry *tool.Registry, cfg LoopConfig, logger *slog.Logger) func(provider.Provider) provider.Provider {
	return func(p provider.Provider) provider.Provider {
		return Augment(p, registry, cfg, logger)
	}
}

// Complete implements provider.Provider.
func (a *Augmented) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := a.loop.Run(ctx, req)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	return provider.CompletionResponse{
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Sources:      resp.Sources,
	}, nil
}

// Stream implements provider.Provider. Tool activity is not surfaced;
// only answer text and raw deltas reach the caller.
func (a *Augmented) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	events := a.loop.RunStream(ctx, req)
	out := make(chan provider.StreamChunk, 16)

	go func() {
		defer close(out)
		for ev := range events {
			var chunk provider.StreamChunk
			switch ev.Type {
			case StreamEventText:
				chunk = provider.StreamChunk{Content: ev.Content, Raw: ev.Raw}
			case StreamEventUsage:
				chunk = provider.StreamChunk{Usage: ev.Usage}
			case StreamEventError:
				chunk = provider.StreamChunk{Err: ev.Err}
			case StreamEventDone:
				chunk = provider.StreamChunk{FinishReason: provider.FinishReasonStop}
			default:
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Keep draining so the loop goroutine can exit.
			}
		}
	}()
	return out, nil
}

// ContextWindowSize implements provider.Provider.
func (a *Augmented) ContextWindowSize() int { return a.base.ContextWindowSize() }

// ModelName implements provider.Provider.
func (a *Augmented) ModelName() string { return a.base.ModelName() }
