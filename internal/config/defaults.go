package config

import (
	"github.com/meditreat/meditreat/internal/events"
	"github.com/meditreat/meditreat/internal/memory"
	"github.com/meditreat/meditreat/internal/summarizer"
)

// Defaults applied by Load.
const (
	DefaultLLM         = ProviderOpenAI
	DefaultTemperature = 0.2
	DefaultSchedule    = "0 4 * * *"
	ScheduleOff        = "off"
)

func (c *Config) defaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	c.Server.Defaults()

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if f := c.Logging.File; f != nil {
		if f.MaxSizeMB <= 0 {
			f.MaxSizeMB = 50
		}
		if f.MaxBackups <= 0 {
			f.MaxBackups = 5
		}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageMemory
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = DataDir()
	}
	c.Storage.SQLite.Defaults(c.Storage.DataDir)
	c.Storage.Redis.Defaults()

	if c.LLM.Default == "" {
		c.LLM.Default = DefaultLLM
	}
	if c.LLM.Temperature == nil {
		t := DefaultTemperature
		c.LLM.Temperature = &t
	}
	for i := range c.LLM.Providers {
		p := &c.LLM.Providers[i]
		if p.Type == "" {
			p.Type = p.Name
		}
		if p.Role == "" {
			p.Role = "primary"
		}
	}

	if c.Context.HistoryLimit <= 0 {
		c.Context.HistoryLimit = memory.DefaultHistoryLimit
	}
	if c.Context.MaxTranscriptTokens <= 0 {
		c.Context.MaxTranscriptTokens = summarizer.DefaultMaxTranscriptTokens
	}
	if c.Context.OnSummaryError == "" {
		c.Context.OnSummaryError = "degrade"
	}

	if c.Events.Backend == "" {
		c.Events.Backend = events.BackendNone
	}
	if c.Events.Topic == "" {
		c.Events.Topic = events.TopicTurnCompleted
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "meditreat"
	}

	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = DefaultSchedule
	}
}
