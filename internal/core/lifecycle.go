package core

import "context"

// Validator is implemented by components that can verify their
// configuration before anything starts. Validate should be read-only.
type Validator interface {
	Validate() error
}

// Starter is implemented by components that start background work
// (goroutines, listeners, connections).
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that need to clean up resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}
