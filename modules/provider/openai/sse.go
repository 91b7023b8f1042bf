package openai

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/meditreat/meditreat/internal/provider"
)

const (
	// maxToolCallArgs caps the accumulated arguments of one streamed call.
	maxToolCallArgs = 1 << 20

	// maxEventSize bounds a single SSE data line.
	maxEventSize = 1 << 20
)

var errMalformedEvent = errors.New("openai: malformed stream event")

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// sseReader turns an SSE body into StreamChunks. Events that carry no
// choices and no usage are forwarded untouched in StreamChunk.Raw, which
// lets gateways that wrap the Chat Completions wire format with their own
// payloads reach the caller.
type sseReader struct {
	body    io.ReadCloser
	out     chan<- provider.StreamChunk
	pending map[int]*pendingCall
}

func newSSEReader(body io.ReadCloser, out chan<- provider.StreamChunk) *sseReader {
	return &sseReader{body: body, out: out, pending: make(map[int]*pendingCall)}
}

// run consumes the body until [DONE], EOF, an error or cancellation. The
// output channel is closed and the body released on return.
func (r *sseReader) run(ctx context.Context) {
	defer close(r.out)
	defer func() { _ = r.body.Close() }()

	// Closing the body unblocks a scanner parked in Read.
	stop := context.AfterFunc(ctx, func() { _ = r.body.Close() })
	defer stop()

	scanner := bufio.NewScanner(r.body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			if len(r.pending) > 0 {
				r.emit(ctx, provider.StreamChunk{ToolCalls: r.flushCalls()})
			}
			return
		}
		if !r.handle(ctx, []byte(data)) {
			return
		}
	}

	if err := ctx.Err(); err != nil {
		r.emit(ctx, provider.StreamChunk{Err: err})
		return
	}
	if err := scanner.Err(); err != nil {
		r.emit(ctx, provider.StreamChunk{Err: mapConnectionError(err)})
	}
}

// handle processes one data payload and reports whether reading continues.
func (r *sseReader) handle(ctx context.Context, data []byte) bool {
	if !json.Valid(data) {
		r.emit(ctx, provider.StreamChunk{Err: fmt.Errorf("%w: %.64q", errMalformedEvent, data)})
		return false
	}

	var event chatStreamChunk
	if err := json.Unmarshal(data, &event); err != nil || (event.Choices == nil && event.Usage == nil) {
		return r.emit(ctx, provider.StreamChunk{Raw: json.RawMessage(data)})
	}

	var usage *provider.TokenUsage
	if event.Usage != nil {
		u := event.Usage.toProvider()
		usage = &u
	}
	if len(event.Choices) == 0 {
		if usage == nil {
			return true
		}
		return r.emit(ctx, provider.StreamChunk{Usage: usage})
	}

	choice := event.Choices[0]
	if err := r.accumulate(choice.Delta.ToolCalls); err != nil {
		r.emit(ctx, provider.StreamChunk{Err: err})
		return false
	}

	chunk := provider.StreamChunk{Content: choice.Delta.Content, Usage: usage}
	if choice.FinishReason != nil {
		chunk.FinishReason = mapFinishReason(choice.FinishReason)
		if len(r.pending) > 0 {
			chunk.ToolCalls = r.flushCalls()
		}
	}
	if chunk.Content == "" && chunk.FinishReason == "" && usage == nil {
		return true
	}
	return r.emit(ctx, chunk)
}

func (r *sseReader) accumulate(deltas []chatToolCallDelta) error {
	for _, d := range deltas {
		call, ok := r.pending[d.Index]
		if !ok {
			call = &pendingCall{}
			r.pending[d.Index] = call
		}
		if d.ID != "" {
			call.id = d.ID
		}
		if d.Function.Name != "" {
			call.name = d.Function.Name
		}
		if call.args.Len()+len(d.Function.Arguments) > maxToolCallArgs {
			return fmt.Errorf("openai: tool call arguments exceed %d bytes", maxToolCallArgs)
		}
		call.args.WriteString(d.Function.Arguments)
	}
	return nil
}

// flushCalls returns the accumulated calls in stream index order and
// resets the accumulator.
func (r *sseReader) flushCalls() []provider.ToolCall {
	indexes := slices.SortedFunc(maps.Keys(r.pending), cmp.Compare[int])
	out := make([]provider.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		c := r.pending[i]
		out = append(out, provider.ToolCall{ID: c.id, Name: c.name, Arguments: json.RawMessage(c.args.String())})
	}
	clear(r.pending)
	return out
}

// emit reports false once ctx is done.
func (r *sseReader) emit(ctx context.Context, chunk provider.StreamChunk) bool {
	select {
	case r.out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
