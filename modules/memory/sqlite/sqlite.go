// Package sqlite implements a persistent memory.Backend on SQLite using
// modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meditreat/meditreat/internal/memory"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Compile-time interface guard.
var _ memory.Backend = (*Backend)(nil)

// Backend stores chat messages in a single SQLite table.
type Backend struct {
	config Config
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file if needed, applies pragmas and migrates
// the schema. The caller must Close the returned Backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	cfg.Defaults("")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite store opened",
		"path", cfg.Path,
		"wal", cfg.walEnabled(),
	)

	return &Backend{config: cfg, db: db, logger: logger}, nil
}

// Ping verifies the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Maintain checkpoints the WAL and refreshes query planner statistics.
// It is safe to call while the store is serving traffic.
func (b *Backend) Maintain(ctx context.Context) error {
	if b.config.walEnabled() {
		if _, err := b.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("sqlite: wal checkpoint: %w", err)
		}
	}
	if _, err := b.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("sqlite: optimize: %w", err)
	}
	return nil
}

// Stop closes the database. It satisfies the lifecycle Stopper contract.
func (b *Backend) Stop(_ context.Context) error {
	return b.Close()
}

// Close closes the database.
func (b *Backend) Close() error {
	b.logger.Info("sqlite store closing")
	return b.db.Close()
}
