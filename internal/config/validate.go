package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/meditreat/meditreat/internal/events"
	"github.com/meditreat/meditreat/internal/turn"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
	roles      = []string{"primary", "internal", "fallback"}
)

// Validate checks a loaded Config and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.Server.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: server.bind %q: %w", cfg.Server.Bind, err))
	}
	if cfg.Server.MessagesPerMinute < 0 {
		errs = append(errs, errors.New("config: server.messages_per_minute must not be negative"))
	}

	errs = append(errs, validateLogging(cfg.Logging)...)
	errs = append(errs, validateStorage(cfg.Storage)...)
	errs = append(errs, validateLLM(cfg.LLM)...)

	if !turn.SummaryPolicy(cfg.Context.OnSummaryError).Valid() {
		errs = append(errs, fmt.Errorf("config: context.on_summary_error must be degrade or abort, got %q", cfg.Context.OnSummaryError))
	}

	switch cfg.Events.Backend {
	case events.BackendNone, events.BackendMemory:
	case events.BackendRedis:
		if cfg.Events.Redis.Addr == "" {
			errs = append(errs, errors.New("config: events.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown events.backend %q", cfg.Events.Backend))
	}

	if cfg.Prompts.ReloadInterval < 0 {
		errs = append(errs, errors.New("config: prompts.reload_interval must not be negative"))
	}
	if cfg.Prompts.ReloadInterval > 0 && cfg.Prompts.SystemFile == "" {
		errs = append(errs, errors.New("config: prompts.reload_interval requires prompts.system_file"))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("config: tracing.endpoint is required when tracing is enabled"))
	}

	if s := cfg.Maintenance.Schedule; s != ScheduleOff {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, fmt.Errorf("config: maintenance.schedule %q: %w", s, err))
		}
	}

	return errors.Join(errs...)
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if !slices.Contains(logLevels, strings.ToLower(l.Level)) {
		errs = append(errs, fmt.Errorf("config: logging.level must be one of %v, got %q", logLevels, l.Level))
	}
	if !slices.Contains(logFormats, l.Format) {
		errs = append(errs, fmt.Errorf("config: logging.format must be text or json, got %q", l.Format))
	}
	if l.File != nil && l.File.Path == "" {
		errs = append(errs, errors.New("config: logging.file.path is required"))
	}
	return errs
}

func validateStorage(s StorageConfig) []error {
	switch s.Backend {
	case StorageMemory:
		return nil
	case StorageSQLite:
		if err := s.SQLite.Validate(); err != nil {
			return []error{fmt.Errorf("config: storage.%w", err)}
		}
	case StorageRedis:
		if err := s.Redis.Validate(); err != nil {
			return []error{fmt.Errorf("config: storage.%w", err)}
		}
	default:
		return []error{fmt.Errorf("config: unknown storage.backend %q", s.Backend)}
	}
	return nil
}

func validateLLM(l LLMConfig) []error {
	var errs []error
	if len(l.Providers) == 0 {
		errs = append(errs, errors.New("config: at least one llm provider must be configured"))
	}

	seen := make(map[string]bool)
	for i, p := range l.Providers {
		where := fmt.Sprintf("config: llm.providers[%d]", i)
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("%s: duplicate provider name %q", where, p.Name))
		}
		seen[p.Name] = true

		if p.Type != ProviderOpenAI && p.Type != ProviderAnthropic {
			errs = append(errs, fmt.Errorf("%s: unknown type %q", where, p.Type))
		}
		if !slices.Contains(roles, p.Role) {
			errs = append(errs, fmt.Errorf("%s: role must be one of %v, got %q", where, roles, p.Role))
		}
		if len(p.APIKeys) == 0 || slices.Contains(p.APIKeys, "") {
			errs = append(errs, fmt.Errorf("%s: api_keys must be non-empty", where))
		}
		if p.TopP != nil && (*p.TopP <= 0 || *p.TopP > 1) {
			errs = append(errs, fmt.Errorf("%s: top_p must be in (0, 1]", where))
		}
	}

	if len(l.Providers) > 0 && !seen[l.Default] {
		errs = append(errs, fmt.Errorf("config: llm.default %q does not name a configured provider", l.Default))
	}
	if t := l.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("config: llm.temperature must be in [0, 2], got %g", *t))
	}
	return errs
}
