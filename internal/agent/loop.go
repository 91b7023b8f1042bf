package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/tool"
)

// Loop alternates model calls and tool executions until the model answers
// without requesting tools or a guard trips.
type Loop struct {
	provider provider.Provider
	executor *ToolExecutor
	tools    []provider.ToolDefinition
	config   LoopConfig
	logger   *slog.Logger
}

// NewLoop creates a loop offering every tool in registry to p.
func NewLoop(p provider.Provider, registry *tool.Registry, cfg LoopConfig, logger *slog.Logger) *Loop {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		provider: p,
		executor: NewToolExecutor(registry, cfg.ParallelTools),
		tools:    registry.Definitions(),
		config:   cfg,
		logger:   logger,
	}
}

// state is the per-answer conversation and guard bookkeeping.
type state struct {
	req      provider.CompletionRequest
	detector *loopDetector
	tokens   tokenTracker
	records  []ToolCallRecord
}

func (l *Loop) newState(req provider.CompletionRequest) *state {
	req.Messages = append([]provider.LLMMessage(nil), req.Messages...)
	req.Tools = append(append([]provider.ToolDefinition(nil), req.Tools...), l.tools...)
	return &state{
		req:      req,
		detector: newLoopDetector(l.config.LoopThreshold),
		tokens:   tokenTracker{budget: l.config.TokenBudget},
	}
}

// act checks guards for calls, runs them and appends the assistant turn
// and the tool results to the conversation.
func (l *Loop) act(ctx context.Context, s *state, content string, calls []provider.ToolCall) ([]ToolCallRecord, error) {
	for _, c := range calls {
		if s.detector.stuck(c) {
			return nil, ErrLoopDetected
		}
	}

	s.req.Messages = append(s.req.Messages, provider.LLMMessage{
		Role:      provider.MessageRoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})

	records := l.executor.Execute(ctx, calls)
	for _, rec := range records {
		s.req.Messages = append(s.req.Messages, provider.LLMMessage{
			Role:    provider.MessageRoleTool,
			Content: rec.Output.Content,
			ToolID:  rec.ID,
		})
		l.logger.Debug("tool call finished", "tool", rec.Name, "is_error", rec.Output.IsError, "duration", rec.Duration)
	}
	s.records = append(s.records, records...)
	return records, nil
}

func stopReasonFor(err error) StopReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StopReasonTimeout
	case errors.Is(err, ErrTokenBudgetExceeded):
		return StopReasonTokenBudget
	case errors.Is(err, ErrLoopDetected):
		return StopReasonLoopDetected
	case errors.Is(err, ErrMaxIterationsReached):
		return StopReasonMaxIterations
	default:
		return StopReasonError
	}
}

// Run answers req, executing requested tools between model calls.
func (l *Loop) Run(ctx context.Context, req provider.CompletionRequest) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	s := l.newState(req)
	resp, iterations, err := l.run(ctx, s)
	resp.ToolCalls = s.records
	resp.Sources = sources(s.records)
	resp.Usage = s.tokens.usage
	resp.Iterations = iterations
	resp.StopReason = StopReasonComplete
	if err != nil {
		resp.StopReason = stopReasonFor(err)
	}
	return resp, err
}

func (l *Loop) run(ctx context.Context, s *state) (Response, int, error) {
	for i := range l.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			return Response{}, i, err
		}
		if s.tokens.exceeded() {
			return Response{}, i, ErrTokenBudgetExceeded
		}

		out, err := l.provider.Complete(ctx, s.req)
		if err != nil {
			return Response{}, i, err
		}
		s.tokens.add(out.Usage)

		if len(out.ToolCalls) == 0 {
			return Response{Content: out.Content, FinishReason: out.FinishReason}, i + 1, nil
		}
		if s.tokens.exceeded() {
			return Response{}, i + 1, ErrTokenBudgetExceeded
		}
		if _, err := l.act(ctx, s, out.Content, out.ToolCalls); err != nil {
			return Response{}, i + 1, err
		}
	}
	return Response{}, l.config.MaxIterations, ErrMaxIterationsReached
}

// RunStream is the streaming form of Run. Text and raw deltas of every
// model call are forwarded as they arrive. The channel always ends with a
// done or an error event.
func (l *Loop) RunStream(ctx context.Context, req provider.CompletionRequest) <-chan StreamEvent {
	ch := make(chan StreamEvent, 16)

	go func() {
		defer close(ch)
		ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()

		send := func(ev StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		// fail delivers the terminal error. It waits for the consumer like
		// send does, but still tries the buffer once ctx is done so a
		// timeout or cancellation is reported when there is room.
		fail := func(err error) {
			ev := StreamEvent{Type: StreamEventError, Err: err}
			select {
			case ch <- ev:
			case <-ctx.Done():
				select {
				case ch <- ev:
				default:
				}
			}
		}

		s := l.newState(req)
		for range l.config.MaxIterations {
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			if s.tokens.exceeded() {
				fail(ErrTokenBudgetExceeded)
				return
			}

			stream, err := l.provider.Stream(ctx, s.req)
			if err != nil {
				fail(err)
				return
			}

			var content strings.Builder
			var calls []provider.ToolCall
			var streamErr error
			for chunk := range stream {
				switch {
				case streamErr != nil:
					// Drain so the provider goroutine can exit.
				case chunk.Err != nil:
					streamErr = chunk.Err
				default:
					if chunk.Content != "" {
						content.WriteString(chunk.Content)
						if !send(StreamEvent{Type: StreamEventText, Content: chunk.Content}) {
							streamErr = ctx.Err()
						}
					}
					if len(chunk.Raw) > 0 && !send(StreamEvent{Type: StreamEventText, Raw: chunk.Raw}) {
						streamErr = ctx.Err()
					}
					calls = append(calls, chunk.ToolCalls...)
					if chunk.Usage != nil {
						s.tokens.add(*chunk.Usage)
						send(StreamEvent{Type: StreamEventUsage, Usage: chunk.Usage})
					}
				}
			}
			if streamErr != nil {
				fail(streamErr)
				return
			}

			if len(calls) == 0 {
				send(StreamEvent{Type: StreamEventDone})
				return
			}
			if s.tokens.exceeded() {
				fail(ErrTokenBudgetExceeded)
				return
			}

			for _, c := range calls {
				send(StreamEvent{Type: StreamEventToolStart, ToolCall: &ToolCallRecord{ID: c.ID, Name: c.Name, Arguments: c.Arguments}})
			}
			records, err := l.act(ctx, s, content.String(), calls)
			if err != nil {
				fail(err)
				return
			}
			for i := range records {
				send(StreamEvent{Type: StreamEventToolEnd, ToolCall: &records[i]})
			}
		}
		fail(ErrMaxIterationsReached)
	}()

	return ch
}

// sources collects distinct documents cited by tool outputs, in order.
func sources(records []ToolCallRecord) []provider.Source {
	var out []provider.Source
	seen := make(map[string]struct{})
	for _, rec := range records {
		for _, src := range rec.Output.Sources {
			if _, dup := seen[src.URL]; dup {
				continue
			}
			seen[src.URL] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}
