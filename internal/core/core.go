// Package core runs the process components in order and shuts them down
// in reverse.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App manages the lifecycle of a set of components.
type App struct {
	components []component
	logger     *slog.Logger
}

type component struct {
	name    string
	value   any
	started bool
}

// NewApp creates an empty App. A nil logger discards output.
func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &App{logger: logger.With("component", "core")}
}

// Add registers a component. Components implementing Starter are started
// in the order added. Components implementing Stopper are stopped in
// reverse. Values implementing neither are accepted and ignored.
func (a *App) Add(name string, c any) {
	a.components = append(a.components, component{name: name, value: c})
}

// Validate runs Validate on every component that implements Validator and
// reports all failures.
func (a *App) Validate() error {
	var errs []error
	for _, c := range a.components {
		if v, ok := c.value.(Validator); ok {
			if err := v.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("validating %s: %w", c.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Start starts all components in order. If any Start fails, components
// started so far are stopped in reverse order.
func (a *App) Start(ctx context.Context) error {
	for i := range a.components {
		c := &a.components[i]
		s, ok := c.value.(Starter)
		if !ok {
			c.started = true
			continue
		}
		a.logger.Info("starting component", "name", c.name)
		if err := s.Start(ctx); err != nil {
			a.logger.Error("component start failed", "name", c.name, "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting %s: %w", c.name, err)
		}
		c.started = true
	}
	a.logger.Info("all components started")
	return nil
}

// Stop stops all started components in reverse order within the shutdown
// timeout and returns their joined errors.
func (a *App) Stop() error {
	return a.stopFrom(len(a.components) - 1)
}

func (a *App) stopFrom(fromIndex int) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := fromIndex; i >= 0; i-- {
		c := &a.components[i]
		if !c.started {
			continue
		}
		c.started = false
		s, ok := c.value.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping component", "name", c.name)
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("component stop error", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts all components and blocks until ctx is done, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received", "cause", context.Cause(ctx))

	err := a.Stop()
	a.logger.Info("shutdown complete")
	return err
}
