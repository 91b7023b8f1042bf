package reload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"text/template"
	"time"
)

func touch(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "system.tmpl")
	base := time.Now().Add(-time.Hour)
	touch(t, path, "initial", base)

	w := NewWatcher(WatcherConfig{Path: path, PollInterval: 20 * time.Millisecond})
	w.Start(context.Background())
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	touch(t, path, "modified", base.Add(time.Minute))

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWatcher(WatcherConfig{Path: filepath.Join(t.TempDir(), "missing")})
	w.Stop()

	w = NewWatcher(WatcherConfig{Path: filepath.Join(t.TempDir(), "missing"), PollInterval: 10 * time.Millisecond})
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

func TestWatcher_MissingFileIsQuiet(t *testing.T) {
	t.Parallel()

	w := NewWatcher(WatcherConfig{Path: filepath.Join(t.TempDir(), "missing"), PollInterval: 10 * time.Millisecond})
	w.Start(context.Background())
	defer w.Stop()

	select {
	case <-w.Changes():
		t.Fatal("unexpected change for a missing file")
	case <-time.After(80 * time.Millisecond):
	}
}

type recordingSetter struct {
	mu   sync.Mutex
	last *template.Template
}

func (s *recordingSetter) SetTemplate(tmpl *template.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = tmpl
}

func (s *recordingSetter) render(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return ""
	}
	var b strings.Builder
	if err := s.last.Execute(&b, map[string]string{"Context": "c", "UserQuery": "q"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	return b.String()
}

func TestPromptReloader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "system.tmpl")
	base := time.Now().Add(-time.Hour)
	touch(t, path, "v1 {{.UserQuery}}", base)

	setter := &recordingSetter{}
	results := make(chan error, 4)
	r := NewPromptReloader(path, 20*time.Millisecond, setter, nil)
	r.OnReload = func(err error) { results <- err }
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Stop(context.Background()) }()

	wait := func() error {
		t.Helper()
		select {
		case err := <-results:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for reload")
			return nil
		}
	}

	time.Sleep(60 * time.Millisecond)
	touch(t, path, "v2 {{.UserQuery}}", base.Add(time.Minute))
	if err := wait(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := setter.render(t); got != "v2 q" {
		t.Errorf("rendered %q, want %q", got, "v2 q")
	}

	// An unknown field is rejected and the previous template is kept.
	touch(t, path, "v3 {{.Missing}}", base.Add(2*time.Minute))
	if err := wait(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := setter.render(t); got != "v2 q" {
		t.Errorf("rendered %q after bad reload, want %q", got, "v2 q")
	}
}
