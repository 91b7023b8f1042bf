package agent

import "time"

// Defaults for LoopConfig.
const (
	DefaultMaxIterations = 4
	DefaultTimeout       = 90 * time.Second
	DefaultLoopThreshold = 2
	DefaultParallelTools = 4
)

// LoopConfig bounds one tool-augmented answer.
type LoopConfig struct {
	// MaxIterations caps model calls per answer.
	MaxIterations int

	// TokenBudget caps cumulative tokens. Zero means unlimited.
	TokenBudget int

	// Timeout caps wall-clock time per answer.
	Timeout time.Duration

	// LoopThreshold is how often an identical tool call may repeat.
	LoopThreshold int

	// ParallelTools caps concurrently executing tool calls.
	ParallelTools int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.LoopThreshold <= 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	if c.ParallelTools <= 0 {
		c.ParallelTools = DefaultParallelTools
	}
	return c
}
