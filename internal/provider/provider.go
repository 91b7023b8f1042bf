package provider

import "context"

// Provider is the capability interface every model vendor adapter
// implements. Callers depend only on this interface.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err. The channel is always closed.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ContextWindowSize returns the maximum context window in tokens.
	ContextWindowSize() int

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing while in cooldown.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// KeySource yields the API key to use for the next request.
// *AuthProfile implements it.
type KeySource interface {
	CurrentKey() string
}

// StaticKey is a KeySource with a single fixed key.
type StaticKey string

// CurrentKey implements KeySource.
func (k StaticKey) CurrentKey() string { return string(k) }
