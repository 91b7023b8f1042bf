package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/tool"
)

// ToolExecutor runs the tool calls of one model turn concurrently.
type ToolExecutor struct {
	registry *tool.Registry
	parallel int
}

// NewToolExecutor creates an executor over registry running at most
// parallel calls at once.
func NewToolExecutor(registry *tool.Registry, parallel int) *ToolExecutor {
	return &ToolExecutor{registry: registry, parallel: max(parallel, 1)}
}

// Execute returns one record per call, in call order. Tool errors and
// panics become error outputs so the model sees them.
func (e *ToolExecutor) Execute(ctx context.Context, calls []provider.ToolCall) []ToolCallRecord {
	records := make([]ToolCallRecord, len(calls))

	var g errgroup.Group
	g.SetLimit(e.parallel)
	for i, call := range calls {
		g.Go(func() error {
			records[i] = e.run(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (e *ToolExecutor) run(ctx context.Context, call provider.ToolCall) (rec ToolCallRecord) {
	rec = ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	start := time.Now()
	defer func() {
		rec.Duration = time.Since(start)
		if r := recover(); r != nil {
			rec.Panicked = true
			rec.Output = tool.Output{Content: fmt.Sprintf("panic: %v", r), IsError: true}
		}
	}()

	out, err := e.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		rec.Output = tool.Output{Content: err.Error(), IsError: true}
		return rec
	}
	rec.Output = out
	return rec
}
