// Package agent runs a bounded reason-act loop that lets a model call
// tools before answering, and exposes it as a provider.Provider.
package agent

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/tool"
)

// Sentinel errors for loop termination.
var (
	ErrTokenBudgetExceeded  = errors.New("agent: token budget exceeded")
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
)

// StopReason describes why the loop ended.
type StopReason string

// StopReason values.
const (
	StopReasonComplete      StopReason = "complete"
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonLoopDetected  StopReason = "loop_detected"
	StopReasonTokenBudget   StopReason = "token_budget"
	StopReasonTimeout       StopReason = "timeout"
	StopReasonError         StopReason = "error"
)

// ToolCallRecord is one executed tool call.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Output    tool.Output
	Duration  time.Duration
	Panicked  bool
}

// Response is the outcome of Loop.Run.
type Response struct {
	Content      string
	FinishReason provider.FinishReason
	ToolCalls    []ToolCallRecord
	Sources      []provider.Source
	Usage        provider.TokenUsage
	Iterations   int
	StopReason   StopReason
}

// StreamEventType identifies a streaming loop event.
type StreamEventType string

// StreamEventType values.
const (
	StreamEventText      StreamEventType = "text"
	StreamEventToolStart StreamEventType = "tool_start"
	StreamEventToolEnd   StreamEventType = "tool_end"
	StreamEventUsage     StreamEventType = "usage"
	StreamEventDone      StreamEventType = "done"
	StreamEventError     StreamEventType = "error"
)

// StreamEvent is emitted by Loop.RunStream.
type StreamEvent struct {
	Type     StreamEventType
	Content  string
	Raw      json.RawMessage
	ToolCall *ToolCallRecord
	Usage    *provider.TokenUsage
	Err      error
}
