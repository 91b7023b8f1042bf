package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/meditreat/meditreat/internal/provider"
)

const (
	streamBuffer = 16

	// maxOpenToolBlocks bounds tool_use blocks that started but never stopped.
	maxOpenToolBlocks = 64
)

// Stream opens a streaming Messages request. The first event is read
// synchronously so connection and auth failures surface as an error
// return, which is what lets the chain fail over.
func (a *Anthropic) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.params(req), option.WithAPIKey(a.keys.CurrentKey()))

	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, mapError(err)
		}
		ch := make(chan provider.StreamChunk)
		close(ch)
		return ch, nil
	}

	ch := make(chan provider.StreamChunk, streamBuffer)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		s := &streamState{out: ch, tools: make(map[int64]*toolBlock)}
		s.consume(ctx, stream)
	}()
	return ch, nil
}

type toolBlock struct {
	id   string
	name string
	args strings.Builder
}

type streamState struct {
	out         chan<- provider.StreamChunk
	inputTokens int64
	tools       map[int64]*toolBlock
}

// consume handles the already-read current event and then the rest.
func (s *streamState) consume(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) {
	for {
		if !s.handle(ctx, stream.Current()) {
			return
		}
		if !stream.Next() {
			break
		}
	}
	if err := stream.Err(); err != nil {
		s.emit(ctx, provider.StreamChunk{Err: mapError(err)})
	}
}

func (s *streamState) handle(ctx context.Context, event sdk.MessageStreamEventUnion) bool {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		s.inputTokens = ev.Message.Usage.InputTokens

	case sdk.ContentBlockStartEvent:
		if ev.ContentBlock.Type != "tool_use" {
			return true
		}
		if len(s.tools) >= maxOpenToolBlocks {
			s.emit(ctx, provider.StreamChunk{Err: fmt.Errorf("provider.anthropic: more than %d open tool blocks", maxOpenToolBlocks)})
			return false
		}
		s.tools[ev.Index] = &toolBlock{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}

	case sdk.ContentBlockDeltaEvent:
		switch d := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			return s.emit(ctx, provider.StreamChunk{Content: d.Text})
		case sdk.InputJSONDelta:
			if tb, ok := s.tools[ev.Index]; ok {
				tb.args.WriteString(d.PartialJSON)
			}
		}

	case sdk.ContentBlockStopEvent:
		tb, ok := s.tools[ev.Index]
		if !ok {
			return true
		}
		delete(s.tools, ev.Index)
		args := json.RawMessage(tb.args.String())
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return s.emit(ctx, provider.StreamChunk{ToolCalls: []provider.ToolCall{{ID: tb.id, Name: tb.name, Arguments: args}}})

	case sdk.MessageDeltaEvent:
		out := ev.Usage.OutputTokens
		return s.emit(ctx, provider.StreamChunk{
			FinishReason: stopReason(ev.Delta.StopReason),
			Usage: &provider.TokenUsage{
				PromptTokens:     int(s.inputTokens),
				CompletionTokens: int(out),
				TotalTokens:      int(s.inputTokens + out),
			},
		})
	}
	return true
}

func (s *streamState) emit(ctx context.Context, chunk provider.StreamChunk) bool {
	select {
	case s.out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
