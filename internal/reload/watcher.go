// Package reload picks up edits to files the server reads at startup
// without a restart.
package reload

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Path string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration
}

func (c WatcherConfig) interval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Watcher polls a file and signals when its modification time or size
// changes. Signals coalesce: at most one is pending at a time.
type Watcher struct {
	cfg     WatcherConfig
	changes chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a Watcher. Nothing is polled until Start.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		changes: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Changes returns the channel signalled after each detected change.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Stop ends polling and waits for the goroutine to exit. Safe to call
// more than once and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.stopped
	}
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.interval())
	defer ticker.Stop()

	last, _ := w.stat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			cur, ok := w.stat()
			if !ok || (cur.mod.Equal(last.mod) && cur.size == last.size) {
				continue
			}
			last = cur
			select {
			case w.changes <- struct{}{}:
			default:
			}
		}
	}
}

// stat reports false while the file is missing, so a delete followed by
// a rewrite signals once.
func (w *Watcher) stat() (fileStamp, bool) {
	info, err := os.Stat(w.cfg.Path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, true
}
