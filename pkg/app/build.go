package app

import (
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/meditreat/meditreat/internal/agent"
	"github.com/meditreat/meditreat/internal/config"
	"github.com/meditreat/meditreat/internal/core"
	"github.com/meditreat/meditreat/internal/cron"
	"github.com/meditreat/meditreat/internal/events"
	"github.com/meditreat/meditreat/internal/gateway"
	"github.com/meditreat/meditreat/internal/generator"
	"github.com/meditreat/meditreat/internal/memory"
	"github.com/meditreat/meditreat/internal/metrics"
	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/reload"
	"github.com/meditreat/meditreat/internal/summarizer"
	"github.com/meditreat/meditreat/internal/telemetry"
	"github.com/meditreat/meditreat/internal/tool"
	"github.com/meditreat/meditreat/internal/turn"
	"github.com/meditreat/meditreat/modules/memory/redis"
	"github.com/meditreat/meditreat/modules/memory/sqlite"
	"github.com/meditreat/meditreat/modules/provider/anthropic"
	"github.com/meditreat/meditreat/modules/provider/openai"
	"github.com/meditreat/meditreat/modules/tool/websearch"
)

// Services is the wired application.
type Services struct {
	App     *core.App
	Turns   *turn.Orchestrator
	Store   *memory.Store
	Chain   *provider.Chain
	Bus     *events.Bus
	Metrics *metrics.Metrics
}

// BuildOptions selects optional surfaces.
type BuildOptions struct {
	Version string

	// NoGateway leaves the HTTP server out, for the MCP command.
	NoGateway bool
}

// Build wires every component from cfg. Components are added to the
// returned App in start order; nothing is started yet. Resources opened
// before a failure are released.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts BuildOptions) (_ *Services, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	app := core.NewApp(logger)
	var opened []core.Stopper
	defer func() {
		if err != nil {
			for i := len(opened) - 1; i >= 0; i-- {
				_ = opened[i].Stop(context.WithoutCancel(ctx))
			}
		}
	}()

	backend, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if s, ok := backend.(core.Stopper); ok {
		opened = append(opened, s)
	}
	app.Add("store", backend)

	tp, err := telemetry.New(ctx, cfg.Tracing, opts.Version, logger)
	if err != nil {
		return nil, err
	}
	opened = append(opened, tp)
	app.Add("tracing", tp)

	bus, err := events.Open(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	opened = append(opened, bus)
	app.Add("events", bus)

	chain, err := buildChain(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	app.Add("providers", chain)

	m := metrics.New()
	gen, err := buildGenerator(cfg, chain, m, logger)
	if err != nil {
		return nil, err
	}
	if path := cfg.Prompts.SystemFile; path != "" && cfg.Prompts.ReloadInterval > 0 {
		app.Add("prompt_reload", reload.NewPromptReloader(path, cfg.Prompts.ReloadInterval, gen, logger))
	}

	store := memory.NewStore(backend, memory.Options{
		HistoryLimit: cfg.Context.HistoryLimit,
		Logger:       logger,
	})
	sum := summarizer.New(chain.For(provider.RoleInternal, ""), summarizer.Options{
		MaxTranscriptTokens: cfg.Context.MaxTranscriptTokens,
		Logger:              logger,
	})

	orch := turn.New(turn.Config{
		HistoryLimit:       cfg.Context.HistoryLimit,
		SummaryPolicy:      turn.SummaryPolicy(cfg.Context.OnSummaryError),
		DefaultLLM:         cfg.LLM.Default,
		DefaultTemperature: cfg.LLM.Temperature,
	}, turn.Deps{
		Store:      store,
		Summarizer: sum,
		Generator:  gen,
		Publisher:  bus,
		Metrics:    m,
		Tracer:     tp.Tracer(),
		Logger:     logger,
	})

	if !opts.NoGateway {
		deps := gateway.Deps{Turns: orch, History: store, Providers: chain, Logger: logger}
		if cfg.Metrics.On() {
			deps.Metrics = m
		}
		app.Add("gateway", gateway.New(cfg.Server, deps))
	}

	if mt, ok := backend.(cron.Maintainer); ok && cfg.Maintenance.Schedule != config.ScheduleOff {
		sched := cron.NewScheduler(logger)
		if err := sched.RegisterJob(&cron.MaintenanceJob{
			Store:        mt,
			Logger:       logger,
			ScheduleExpr: cfg.Maintenance.Schedule,
		}); err != nil {
			return nil, err
		}
		app.Add("cron", sched)
	}

	if err := app.Validate(); err != nil {
		return nil, err
	}

	return &Services{App: app, Turns: orch, Store: store, Chain: chain, Bus: bus, Metrics: m}, nil
}

func openBackend(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (memory.Backend, error) {
	switch cfg.Backend {
	case config.StorageSQLite:
		return sqlite.Open(ctx, cfg.SQLite, logger)
	case config.StorageRedis:
		return redis.Open(ctx, cfg.Redis, logger)
	case config.StorageMemory, "":
		return memory.NewInMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("app: unknown storage backend %q", cfg.Backend)
	}
}

func buildChain(cfg config.LLMConfig, logger *slog.Logger) (*provider.Chain, error) {
	entries := make([]provider.ChainEntry, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		auth, err := provider.NewAuthProfile(pc.APIKeys...)
		if err != nil {
			return nil, fmt.Errorf("app: provider %q: %w", pc.Name, err)
		}

		plog := logger.With("provider", pc.Name)
		var p provider.Provider
		switch pc.Type {
		case config.ProviderOpenAI:
			p, err = openai.New(openai.Config{
				Model:         pc.Model,
				BaseURL:       pc.BaseURL,
				MaxTokens:     pc.MaxTokens,
				TopP:          pc.TopP,
				Timeout:       pc.Timeout,
				ContextWindow: pc.ContextWindow,
			}, auth, plog)
		case config.ProviderAnthropic:
			p, err = anthropic.New(anthropic.Config{
				Model:         pc.Model,
				BaseURL:       pc.BaseURL,
				MaxTokens:     pc.MaxTokens,
				TopP:          pc.TopP,
				Timeout:       pc.Timeout,
				ContextWindow: pc.ContextWindow,
			}, auth, plog)
		default:
			err = fmt.Errorf("unknown type %q", pc.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("app: provider %q: %w", pc.Name, err)
		}

		entries = append(entries, provider.ChainEntry{
			Name:     pc.Name,
			Provider: p,
			Role:     provider.Role(pc.Role),
			Auth:     auth,
			Health:   cfg.Health,
		})
	}
	return provider.NewChain(entries, provider.WithLogger(logger))
}

func buildGenerator(cfg *config.Config, chain *provider.Chain, m *metrics.Metrics, logger *slog.Logger) (*generator.Generator, error) {
	var tmpl *template.Template
	if path := cfg.Prompts.SystemFile; path != "" {
		var err error
		if tmpl, err = generator.LoadTemplate(path); err != nil {
			return nil, fmt.Errorf("app: prompts.system_file: %w", err)
		}
	}

	opts := generator.Options{
		Template:   tmpl,
		OnDegraded: func(error) { m.GenerationDegraded() },
		Logger:     logger,
	}

	if ws := cfg.WebSearch; ws.Enabled {
		tools := tool.NewRegistry(logger)
		if err := tools.Register(websearch.New(websearch.Config{
			Endpoint:   ws.Endpoint,
			MaxResults: ws.MaxResults,
			Timeout:    ws.Timeout,
		})); err != nil {
			return nil, fmt.Errorf("app: web_search: %w", err)
		}
		opts.Wrap = agent.Wrapper(tools, agent.LoopConfig{
			MaxIterations: ws.MaxIterations,
			TokenBudget:   ws.TokenBudget,
		}, logger)
	}

	return generator.New(chain, opts), nil
}
