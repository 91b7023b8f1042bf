package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const openAIKey = "sk-abcdefghijklmnopqrstuvwxyz"

func newTestLogger(t *testing.T, level slog.Level, literals ...string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	r := NewRedactor()
	for _, l := range literals {
		r.AddLiteral(l)
	}
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler_Redacts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		log    func(*slog.Logger)
		secret string
	}{
		{"message", func(l *slog.Logger) { l.Info("key is " + openAIKey) }, openAIKey},
		{"attribute", func(l *slog.Logger) { l.Info("call", "api_key", "configured-secret-1") }, "configured-secret-1"},
		{"with attrs", func(l *slog.Logger) { l.With("token", "configured-secret-1").Info("x") }, "configured-secret-1"},
		{"group", func(l *slog.Logger) { l.WithGroup("provider").Info("x", "key", openAIKey) }, openAIKey},
		{"group attr", func(l *slog.Logger) {
			l.Info("x", slog.Group("request", slog.String("auth", "configured-secret-1")))
		}, "configured-secret-1"},
		{"error value", func(l *slog.Logger) {
			l.Error("failed", "error", errors.New("401 for key "+openAIKey))
		}, openAIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, buf := newTestLogger(t, slog.LevelDebug, "configured-secret-1")
			tt.log(logger)
			out := buf.String()
			if strings.Contains(out, tt.secret) {
				t.Errorf("secret leaked: %s", out)
			}
			if !strings.Contains(out, RedactPlaceholder) {
				t.Errorf("placeholder missing: %s", out)
			}
		})
	}
}

func TestRedactingHandler_LeavesCleanRecords(t *testing.T) {
	t.Parallel()

	logger, buf := newTestLogger(t, slog.LevelDebug)
	logger.Info("turn completed", "chat_id", "0b8e9f3a", "chars", 42)

	out := buf.String()
	if strings.Contains(out, RedactPlaceholder) || !strings.Contains(out, "chars=42") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := NewRedactingHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}), NewRedactor())
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled at warn level")
	}
}
