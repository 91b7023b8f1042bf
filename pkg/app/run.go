// Package app loads configuration, wires the components and runs them
// until the process is told to stop. It is shared by the CLI commands and
// the OS service wrapper.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/meditreat/meditreat/internal/config"
	"github.com/meditreat/meditreat/internal/events"
	"github.com/meditreat/meditreat/internal/mcpserver"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.Resolve picks one.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// LoadConfig resolves, loads and validates the configuration file.
func LoadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.Resolve(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Run serves the HTTP API until SIGINT or SIGTERM.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, params)
}

// RunContext serves the HTTP API until ctx is done.
func RunContext(ctx context.Context, params RunParams) error {
	cfg, path, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	logger, closer := NewLogger(cfg.Logging, secretsRedactor(cfg))
	defer func() { _ = closer.Close() }()
	logger.Info("meditreat starting", "version", params.Version, "commit", params.Commit, "config", path)

	svc, err := Build(ctx, cfg, logger, BuildOptions{Version: params.Version})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.App.Run(ctx) })
	watchEvents(ctx, g, cfg, svc.Bus, logger)
	return g.Wait()
}

// RunMCP serves the MCP tools over in and out. The HTTP gateway is not
// started; background components such as provider health checks are.
func RunMCP(ctx context.Context, params RunParams, in io.Reader, out io.Writer) error {
	cfg, _, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs must not go there.
	logger, closer := NewLogger(cfg.Logging, secretsRedactor(cfg))
	defer func() { _ = closer.Close() }()

	svc, err := Build(ctx, cfg, logger, BuildOptions{Version: params.Version, NoGateway: true})
	if err != nil {
		return err
	}

	srv := mcpserver.New(params.Version, svc.Turns, svc.Store, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.App.Run(ctx) })
	watchEvents(ctx, g, cfg, svc.Bus, logger)
	g.Go(func() error {
		defer cancel()
		return srv.ServeStdio(ctx, in, out)
	})
	return g.Wait()
}

// watchEvents consumes the in-process bus of the memory events backend.
// Other backends deliver to external consumers.
func watchEvents(ctx context.Context, g *errgroup.Group, cfg *config.Config, bus *events.Bus, logger *slog.Logger) {
	if cfg.Events.Backend != events.BackendMemory {
		return
	}
	g.Go(func() error { return logEvents(ctx, bus, logger) })
}

// logEvents drains the in-process event stream into the debug log.
func logEvents(ctx context.Context, bus *events.Bus, logger *slog.Logger) error {
	msgs, err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("app: subscribe events: %w", err)
	}
	for msg := range msgs {
		ev, err := events.Decode(msg)
		if err != nil {
			logger.Warn("undecodable event", "id", msg.UUID, "error", err)
		} else {
			logger.Debug("turn completed",
				"chat_id", ev.ChatID,
				"mode", ev.Mode,
				"degraded", ev.Degraded,
				"persisted", ev.Persisted,
				"duration_ms", ev.DurationMS,
			)
		}
		msg.Ack()
	}
	return nil
}
