package agent

import (
	"encoding/json"

	"github.com/meditreat/meditreat/internal/provider"
)

// loopDetector counts identical tool calls. Arguments are compared after
// a JSON round trip so key order does not matter.
type loopDetector struct {
	threshold int
	seen      map[string]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{threshold: threshold, seen: make(map[string]int)}
}

func canonicalArgs(args json.RawMessage) string {
	var v any
	if json.Unmarshal(args, &v) != nil {
		return string(args)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(args)
	}
	return string(b)
}

// stuck records call and reports whether it has now repeated threshold times.
func (d *loopDetector) stuck(call provider.ToolCall) bool {
	key := call.Name + ":" + canonicalArgs(call.Arguments)
	d.seen[key]++
	return d.seen[key] >= d.threshold
}

// tokenTracker sums usage against an optional budget. Owned by one loop
// goroutine.
type tokenTracker struct {
	budget int
	usage  provider.TokenUsage
}

func (t *tokenTracker) add(u provider.TokenUsage) {
	t.usage.PromptTokens += u.PromptTokens
	t.usage.CompletionTokens += u.CompletionTokens
	t.usage.TotalTokens += u.TotalTokens
}

func (t *tokenTracker) exceeded() bool {
	return t.budget > 0 && t.usage.TotalTokens >= t.budget
}
