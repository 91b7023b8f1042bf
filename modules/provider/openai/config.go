package openai

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

// Config describes one OpenAI-compatible Chat Completions endpoint.
type Config struct {
	Model         string
	BaseURL       string
	MaxTokens     int
	TopP          *float64
	Timeout       time.Duration
	ContextWindow int
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = contextWindows[c.Model]
	}
}

func (c *Config) validate() error {
	if c.ContextWindow <= 0 {
		return fmt.Errorf("provider.openai: context_window must be set for model %q", c.Model)
	}
	if c.MaxTokens < 0 {
		return errors.New("provider.openai: max_tokens must not be negative")
	}
	return nil
}

// contextWindows lists token windows for models that do not need an
// explicit context_window.
var contextWindows = map[string]int{
	"gpt-3.5-turbo": 16385,
	"gpt-4":         8192,
	"gpt-4-turbo":   128000,
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"gpt-4.1":       1047576,
	"gpt-4.1-mini":  1047576,
	"o3-mini":       200000,
	"o4-mini":       200000,
}
