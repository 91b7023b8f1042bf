// Package config handles YAML configuration loading, environment variable
// expansion, defaults and validation for meditreat.
package config

import (
	"time"

	"github.com/meditreat/meditreat/internal/events"
	"github.com/meditreat/meditreat/internal/gateway"
	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/telemetry"
	"github.com/meditreat/meditreat/modules/memory/redis"
	"github.com/meditreat/meditreat/modules/memory/sqlite"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Server      gateway.Config    `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Storage     StorageConfig     `yaml:"storage"`
	LLM         LLMConfig         `yaml:"llm"`
	WebSearch   WebSearchConfig   `yaml:"web_search"`
	Context     ContextConfig     `yaml:"context"`
	Prompts     PromptsConfig     `yaml:"prompts"`
	Events      events.Config     `yaml:"events"`
	Tracing     telemetry.Config  `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// LoggingConfig selects the log handler and an optional rotated file sink.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// File, when set, receives logs instead of stderr.
	File *LogFileConfig `yaml:"file,omitempty"`
}

// LogFileConfig controls rotation of the log file.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// StorageConfig selects where chat history lives.
type StorageConfig struct {
	Backend string `yaml:"backend"`

	// DataDir holds the SQLite file when sqlite.path is empty.
	DataDir string `yaml:"data_dir"`

	SQLite sqlite.Config `yaml:"sqlite"`
	Redis  redis.Config  `yaml:"redis"`
}

// Provider types.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// LLMConfig lists the model vendors and the per-turn defaults.
type LLMConfig struct {
	// Default names the provider used when a request does not pick one.
	Default string `yaml:"default"`

	// Temperature is used when a request does not carry one.
	Temperature *float64 `yaml:"temperature"`

	Providers []ProviderConfig `yaml:"providers"`

	// Health tunes cooldowns after provider failures.
	Health provider.HealthConfig `yaml:"health"`
}

// ProviderConfig describes one model vendor.
type ProviderConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Role is primary, internal or fallback.
	Role string `yaml:"role"`

	// APIKeys rotate on rate limits.
	APIKeys       []string      `yaml:"api_keys"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	MaxTokens     int           `yaml:"max_tokens"`
	TopP          *float64      `yaml:"top_p"`
	Timeout       time.Duration `yaml:"timeout"`
	ContextWindow int           `yaml:"context_window"`
}

// WebSearchConfig enables the web_search tool for replies.
type WebSearchConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	MaxResults    int           `yaml:"max_results"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxIterations int           `yaml:"max_iterations"`
	TokenBudget   int           `yaml:"token_budget"`
}

// ContextConfig tunes history retrieval and summarization.
type ContextConfig struct {
	HistoryLimit        int    `yaml:"history_limit"`
	MaxTranscriptTokens int    `yaml:"max_transcript_tokens"`
	OnSummaryError      string `yaml:"on_summary_error"`
}

// PromptsConfig overrides built-in prompts.
type PromptsConfig struct {
	// SystemFile is a text/template replacing the built-in system prompt.
	SystemFile string `yaml:"system_file"`

	// ReloadInterval polls SystemFile for edits. Zero disables reloading.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// On reports whether metrics are served. They are by default.
func (m MetricsConfig) On() bool { return m.Enabled == nil || *m.Enabled }

// MaintenanceConfig schedules storage housekeeping.
type MaintenanceConfig struct {
	// Schedule is a five-field cron expression. "off" disables the job.
	Schedule string `yaml:"schedule"`
}
