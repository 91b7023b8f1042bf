// Package provider defines the model capability interface, health tracking
// with exponential backoff, and a failover chain that routes requests to a
// named vendor first and to fallbacks when it is unavailable.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AuthProfile manages a set of API keys for a single provider,
// supporting rotation on rate limit errors.
type AuthProfile struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// ErrNoKeys is returned when NewAuthProfile is called without any keys.
var ErrNoKeys = errors.New("AuthProfile requires at least one key")

// NewAuthProfile creates an AuthProfile with the given keys.
func NewAuthProfile(keys ...string) (*AuthProfile, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return &AuthProfile{keys: keys}, nil
}

// CurrentKey returns the currently active API key.
func (a *AuthProfile) CurrentKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keys[a.idx]
}

// Rotate advances to the next key, wrapping around. It reports whether
// rotation happened (more than one key exists).
func (a *AuthProfile) Rotate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.keys) <= 1 {
		return false
	}
	a.idx = (a.idx + 1) % len(a.keys)
	return true
}

// CurrentIndex returns the zero-based index of the active key.
func (a *AuthProfile) CurrentIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx
}

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name     string
	Provider Provider
	Role     Role
	Auth     *AuthProfile
	Health   HealthConfig
}

type chainEntry struct {
	ChainEntry
	health *healthTracker
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger into the Chain.
// When nil or omitted, log output is discarded.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// Chain orchestrates failover across named providers. Use For to obtain a
// Provider view bound to a role and a preferred entry.
type Chain struct {
	entries []chainEntry
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewChain creates a chain from the given entries. Names must be unique.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	seen := make(map[string]struct{}, len(entries))
	internal := make([]chainEntry, len(entries))
	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("provider: duplicate chain entry %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		internal[i] = chainEntry{
			ChainEntry: e,
			health:     newHealthTracker(e.Health),
		}
	}

	c := &Chain{entries: internal}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	for i := range c.entries {
		e := &c.entries[i]
		name := e.Name
		logger := c.logger
		e.health.onStateChange = func(from, to healthState) {
			switch to {
			case stateCooldown:
				logger.Warn("provider entered cooldown",
					"provider", name,
					"backoff", e.health.CurrentBackoff(),
					"failures", e.health.Failures(),
				)
			case stateDead:
				logger.Error("provider marked dead",
					"provider", name,
					"total_failures", e.health.Failures(),
				)
			case stateHealthy:
				logger.Info("provider revived",
					"provider", name,
					"previous_state", from.String(),
				)
			}
		}
	}

	return c, nil
}

// Start launches background health checks. It satisfies the lifecycle
// Starter contract.
func (pc *Chain) Start(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.cancel != nil {
		return nil
	}

	// Health probes outlive the start context.
	ctx, pc.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go runHealthChecks(ctx, minHealthCheckInterval(pc.entries), pc.entries)
	return nil
}

// Stop cancels background health checks.
func (pc *Chain) Stop(_ context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.cancel != nil {
		pc.cancel()
		pc.cancel = nil
	}
	return nil
}

// Names returns the configured entry names in declaration order.
func (pc *Chain) Names() []string {
	names := make([]string, len(pc.entries))
	for i := range pc.entries {
		names[i] = pc.entries[i].Name
	}
	return names
}

// Has reports whether an entry with the given name exists.
func (pc *Chain) Has(name string) bool {
	for i := range pc.entries {
		if pc.entries[i].Name == name {
			return true
		}
	}
	return false
}

// Status reports the health state of each entry, keyed by name.
func (pc *Chain) Status() map[string]string {
	out := make(map[string]string, len(pc.entries))
	for i := range pc.entries {
		out[pc.entries[i].Name] = pc.entries[i].health.State().String()
	}
	return out
}

// For returns a Provider that routes to prefer first (when it names an
// entry), then to entries serving role, then to fallbacks.
func (pc *Chain) For(role Role, prefer string) Provider {
	return &routed{chain: pc, role: role, prefer: prefer}
}

// Complete sends a completion request to the best available candidate,
// failing over on retryable errors.
func (pc *Chain) Complete(ctx context.Context, role Role, prefer string, req CompletionRequest) (CompletionResponse, error) {
	candidates := pc.candidates(role, prefer)
	if len(candidates) == 0 {
		return CompletionResponse{}, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			e.health.RecordSuccess()
			return resp, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return CompletionResponse{}, err
		}
		pc.recordFailure(e, err)
	}

	return CompletionResponse{}, pc.exhausted(role, lastErr)
}

// Stream sends a streaming request to the best available candidate. Only
// connection-time errors fail over; once a stream is open its chunks are
// forwarded as-is.
func (pc *Chain) Stream(ctx context.Context, role Role, prefer string, req CompletionRequest) (<-chan StreamChunk, error) {
	candidates := pc.candidates(role, prefer)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		ch, err := e.Provider.Stream(ctx, req)
		if err == nil {
			return pc.wrapStream(ch, e), nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		pc.recordFailure(e, err)
	}

	return nil, pc.exhausted(role, lastErr)
}

func (pc *Chain) recordFailure(e *chainEntry, err error) {
	if IsRateLimit(err) && e.Auth != nil && e.Auth.Rotate() {
		pc.logger.Info("auth key rotated",
			"provider", e.Name,
			"key_index", e.Auth.CurrentIndex(),
		)
	}
	e.health.RecordFailure()
	pc.logger.Warn("provider failed, failing over",
		"provider", e.Name,
		"error", err,
	)
}

func (pc *Chain) exhausted(role Role, lastErr error) error {
	if lastErr != nil {
		pc.logger.Error("all providers exhausted", "role", role, "last_error", lastErr)
		return fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	pc.logger.Error("all providers exhausted", "role", role)
	return fmt.Errorf("%w for role %q: all candidates unavailable", ErrAllProviders, role)
}

// wrapStream defers the health verdict until the stream completes.
// Mid-stream retryable errors degrade health immediately.
func (pc *Chain) wrapStream(src <-chan StreamChunk, e *chainEntry) <-chan StreamChunk {
	out := make(chan StreamChunk, cap(src))
	go func() {
		defer close(out)
		var sawError bool
		for chunk := range src {
			if chunk.Err != nil && IsRetryable(chunk.Err) {
				sawError = true
				e.health.RecordFailure()
				pc.logger.Warn("mid-stream error degraded provider health",
					"provider", e.Name,
					"error", chunk.Err,
				)
			}
			out <- chunk
		}
		if !sawError {
			e.health.RecordSuccess()
		}
	}()
	return out
}

// candidates orders entries for a request: the preferred entry, then direct
// role matches, then fallbacks. The internal role borrows primary entries
// when none is dedicated to it.
func (pc *Chain) candidates(role Role, prefer string) []*chainEntry {
	var preferred, direct, fallbacks []*chainEntry

	hasInternal := false
	for i := range pc.entries {
		if pc.entries[i].Role == RoleInternal {
			hasInternal = true
			break
		}
	}

	for i := range pc.entries {
		e := &pc.entries[i]
		switch {
		case prefer != "" && e.Name == prefer:
			preferred = append(preferred, e)
		case e.Role == role:
			direct = append(direct, e)
		case role == RoleInternal && !hasInternal && e.Role == RolePrimary:
			direct = append(direct, e)
		case e.Role == RoleFallback:
			fallbacks = append(fallbacks, e)
		}
	}

	out := append(preferred, direct...)
	return append(out, fallbacks...)
}

// first returns the first available candidate, or the first candidate at all.
func (pc *Chain) first(role Role, prefer string) *chainEntry {
	candidates := pc.candidates(role, prefer)
	for _, e := range candidates {
		if e.health.IsAvailable() {
			return e
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

// minHealthCheckInterval returns the shortest configured check interval.
func minHealthCheckInterval(entries []chainEntry) time.Duration {
	if len(entries) == 0 {
		return 10 * time.Second
	}
	interval := entries[0].Health.checkIntervalOrDefault()
	for i := 1; i < len(entries); i++ {
		if d := entries[i].Health.checkIntervalOrDefault(); d < interval {
			interval = d
		}
	}
	return interval
}

// runHealthChecks probes dead or cooling-down providers until ctx ends.
func runHealthChecks(ctx context.Context, interval time.Duration, entries []chainEntry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range entries {
				e := &entries[i]
				if !e.health.ShouldHealthCheck() {
					continue
				}
				checker, ok := e.Provider.(HealthChecker)
				if !ok {
					continue
				}
				if err := checker.HealthCheck(ctx); err == nil {
					e.health.RecordSuccess()
				}
			}
		}
	}
}

// routed is a Provider view over a Chain.
type routed struct {
	chain  *Chain
	role   Role
	prefer string
}

var _ Provider = (*routed)(nil)

func (r *routed) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return r.chain.Complete(ctx, r.role, r.prefer, req)
}

func (r *routed) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return r.chain.Stream(ctx, r.role, r.prefer, req)
}

func (r *routed) ContextWindowSize() int {
	if e := r.chain.first(r.role, r.prefer); e != nil {
		return e.Provider.ContextWindowSize()
	}
	return 0
}

func (r *routed) ModelName() string {
	if e := r.chain.first(r.role, r.prefer); e != nil {
		return e.Provider.ModelName()
	}
	return ""
}
