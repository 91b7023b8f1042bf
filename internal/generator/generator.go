// Package generator produces assistant replies from a prompt and a context
// summary, either buffered or as a stream of text pieces.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/meditreat/meditreat/internal/provider"
)

// Fixed user-facing replies.
const (
	InvalidPrompt = "Invalid prompt."
	DegradedReply = "Experiencing errors processing your request, please try again later!"
	EmptyReply    = "I'm sorry, I couldn't generate a response. Please try again."
)

// Router selects the provider for a role, honoring a per-request
// preference. *provider.Chain implements it.
type Router interface {
	For(role provider.Role, prefer string) provider.Provider
}

// Request is one generation request.
type Request struct {
	Prompt      string
	Context     string
	LLM         string
	Temperature *float64

	// OnDegraded, if set, is called once when this request's provider
	// failure is replaced by DegradedReply. For streams it runs before
	// the DegradedReply piece is sent.
	OnDegraded func(error)
}

// Reply is the result of a buffered generation.
type Reply struct {
	Text     string
	Usage    *provider.TokenUsage
	Sources  []provider.Source
	Model    string
	Degraded bool
}

// Options configures a Generator.
type Options struct {
	// Template renders the system message. Nil uses DefaultTemplate.
	Template *template.Template

	// Wrap, when set, decorates the provider chosen for each request,
	// for instance to give it tools.
	Wrap func(provider.Provider) provider.Provider

	// OnDegraded is called whenever a provider failure is replaced by
	// DegradedReply.
	OnDegraded func(error)

	Logger *slog.Logger
}

// Generator answers prompts through the primary provider role.
type Generator struct {
	router     Router
	tmpl       atomic.Pointer[template.Template]
	wrap       func(provider.Provider) provider.Provider
	onDegraded func(error)
	logger     *slog.Logger
}

// New creates a Generator.
func New(router Router, opts Options) *Generator {
	if opts.Template == nil {
		opts.Template = DefaultTemplate()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.OnDegraded == nil {
		opts.OnDegraded = func(error) {}
	}
	g := &Generator{
		router:     router,
		wrap:       opts.Wrap,
		onDegraded: opts.OnDegraded,
		logger:     opts.Logger,
	}
	g.tmpl.Store(opts.Template)
	return g
}

// SetTemplate replaces the system prompt template for subsequent requests.
// Nil is ignored.
func (g *Generator) SetTemplate(tmpl *template.Template) {
	if tmpl != nil {
		g.tmpl.Store(tmpl)
	}
}

// ModelName reports the model that would serve a request preferring llm.
func (g *Generator) ModelName(llm string) string {
	return g.router.For(provider.RolePrimary, llm).ModelName()
}

func (g *Generator) provider(llm string) provider.Provider {
	p := g.router.For(provider.RolePrimary, llm)
	if g.wrap != nil {
		p = g.wrap(p)
	}
	return p
}

func (g *Generator) request(req Request) (provider.CompletionRequest, error) {
	system, err := render(g.tmpl.Load(), PromptData{Context: req.Context, UserQuery: req.Prompt})
	if err != nil {
		return provider.CompletionRequest{}, err
	}
	return provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: system},
			{Role: provider.MessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
	}, nil
}

func (g *Generator) degrade(req Request, err error) {
	attrs := []any{"llm", req.LLM, "error", err}
	switch {
	case errors.Is(err, provider.ErrRateLimit):
		g.logger.Error("generation rate limited, check plan and quota", attrs...)
	case errors.Is(err, context.Canceled):
		g.logger.Info("generation canceled", attrs...)
	default:
		g.logger.Error("generation failed", attrs...)
	}
	g.onDegraded(err)
	if req.OnDegraded != nil {
		req.OnDegraded(err)
	}
}

// Generate produces a complete reply. It never fails: provider errors
// yield DegradedReply with Degraded set.
func (g *Generator) Generate(ctx context.Context, req Request) Reply {
	if strings.TrimSpace(req.Prompt) == "" {
		g.logger.Warn("empty prompt")
		return Reply{Text: InvalidPrompt}
	}

	p := g.provider(req.LLM)
	model := p.ModelName()

	creq, err := g.request(req)
	if err != nil {
		g.degrade(req, err)
		return Reply{Text: DegradedReply, Model: model, Degraded: true}
	}

	resp, err := p.Complete(ctx, creq)
	if err != nil {
		g.degrade(req, err)
		return Reply{Text: DegradedReply, Model: model, Degraded: true}
	}

	reply := Reply{Text: resp.Content, Sources: resp.Sources, Model: model}
	if resp.Usage != (provider.TokenUsage{}) {
		usage := resp.Usage
		reply.Usage = &usage
	}
	if strings.TrimSpace(reply.Text) == "" {
		g.logger.Warn("model returned no text", "llm", req.LLM, "model", model)
		reply.Text = EmptyReply
	}
	g.logger.Debug("reply generated", "llm", req.LLM, "model", model, "chars", len(reply.Text))
	return reply
}

// GenerateStream produces a reply as text pieces. The channel is closed
// after the last piece. On provider failure DegradedReply is sent as the
// final piece; pieces already sent are not retracted. Cancelling ctx stops
// delivery.
func (g *Generator) GenerateStream(ctx context.Context, req Request) <-chan string {
	out := make(chan string, 16)

	if strings.TrimSpace(req.Prompt) == "" {
		g.logger.Warn("empty prompt")
		out <- InvalidPrompt
		close(out)
		return out
	}

	go func() {
		defer close(out)

		send := func(s string) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		p := g.provider(req.LLM)
		creq, err := g.request(req)
		if err != nil {
			g.degrade(req, err)
			send(DegradedReply)
			return
		}

		stream, err := p.Stream(ctx, creq)
		if err != nil {
			g.degrade(req, err)
			send(DegradedReply)
			return
		}

		var sent int
		var failed, stopped bool
		for chunk := range stream {
			if failed || stopped {
				continue // drain
			}
			if chunk.Err != nil {
				g.degrade(req, chunk.Err)
				failed = true
				continue
			}
			frag := Normalize(chunk)
			if frag.Kind == KindUnrecognized {
				g.logger.Debug("unrecognized stream fragment passed through", "raw", frag.Raw)
			}
			for _, piece := range frag.Texts() {
				if !send(piece) {
					stopped = true
					break
				}
				sent++
			}
		}

		switch {
		case stopped:
		case failed:
			send(DegradedReply)
		case sent == 0:
			g.logger.Warn("model streamed no text", "llm", req.LLM)
			send(EmptyReply)
		}
	}()

	return out
}
