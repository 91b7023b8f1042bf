package reload

import (
	"context"
	"log/slog"
	"sync"
	"text/template"
	"time"

	"github.com/meditreat/meditreat/internal/generator"
)

// TemplateSetter receives freshly parsed system prompt templates.
type TemplateSetter interface {
	SetTemplate(*template.Template)
}

// PromptReloader re-reads the system prompt file whenever it changes and
// hands the parsed template to a TemplateSetter. A file that fails to
// parse is logged and the previous template stays in use.
type PromptReloader struct {
	path   string
	target TemplateSetter
	logger *slog.Logger

	watcher *Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// OnReload, if set, is called after every reload attempt.
	OnReload func(error)
}

// NewPromptReloader creates a reloader for the template at path.
func NewPromptReloader(path string, interval time.Duration, target TemplateSetter, logger *slog.Logger) *PromptReloader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PromptReloader{
		path:    path,
		target:  target,
		logger:  logger.With("component", "prompt_reload", "path", path),
		watcher: NewWatcher(WatcherConfig{Path: path, PollInterval: interval}),
	}
}

// Start implements core.Starter.
func (r *PromptReloader) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.watcher.Start(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.watcher.Changes():
				r.reload()
			}
		}
	}()
	return nil
}

// Stop implements core.Stopper.
func (r *PromptReloader) Stop(context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.watcher.Stop()
	r.wg.Wait()
	return nil
}

func (r *PromptReloader) reload() {
	tmpl, err := generator.LoadTemplate(r.path)
	if err != nil {
		r.logger.Warn("system prompt reload failed, keeping previous template", "error", err)
	} else {
		r.target.SetTemplate(tmpl)
		r.logger.Info("system prompt reloaded")
	}
	if r.OnReload != nil {
		r.OnReload(err)
	}
}
