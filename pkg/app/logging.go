package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/meditreat/meditreat/internal/config"
	"github.com/meditreat/meditreat/internal/security"
)

// NewLogger builds the process logger from cfg. Output goes to stderr, or
// to a rotated file when logging.file is set. Every record passes through
// redactor. The returned closer releases the file sink.
func NewLogger(cfg config.LoggingConfig, redactor *security.Redactor) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if f := cfg.File; f != nil {
		lj := &lumberjack.Logger{
			Filename:   f.Path,
			MaxSize:    f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAge:     f.MaxAgeDays,
			Compress:   f.Compress,
		}
		out, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(out, opts)
	} else {
		inner = slog.NewTextHandler(out, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// secretsRedactor registers every configured secret with a new Redactor.
func secretsRedactor(cfg *config.Config) *security.Redactor {
	r := security.NewRedactor()
	for _, p := range cfg.LLM.Providers {
		for _, k := range p.APIKeys {
			r.AddLiteral(k)
		}
	}
	r.AddLiteral(cfg.Server.AdminToken)
	r.AddLiteral(cfg.Storage.Redis.Password)
	r.AddLiteral(cfg.Events.Redis.Password)
	return r
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
