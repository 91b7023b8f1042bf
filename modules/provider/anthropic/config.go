package anthropic

import "time"

const (
	defaultModel         = "claude-sonnet-4-5-20250929"
	defaultMaxTokens     = 1024
	defaultContextWindow = 200_000
	defaultTimeout       = 60 * time.Second
)

// Config describes the Anthropic Messages API endpoint and model.
type Config struct {
	Model         string
	BaseURL       string
	MaxTokens     int
	TopP          *float64
	ContextWindow int
	Timeout       time.Duration
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = defaultContextWindow
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}
