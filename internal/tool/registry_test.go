package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type echoTool struct{ name string }

func (e echoTool) Name() string            { return e.name }
func (e echoTool) Description() string     { return "echoes its input" }
func (e echoTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (e echoTool) Execute(_ context.Context, args json.RawMessage) (Output, error) {
	return Output{Content: string(args)}, nil
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	if err := r.Register(echoTool{name: "echo"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"q":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Content != `{"q":1}` {
		t.Errorf("Content = %q", out.Content)
	}
}

func TestRegistry_Errors(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	if err := r.Register(echoTool{name: "  "}); !errors.Is(err, ErrEmptyToolName) {
		t.Errorf("empty name: %v", err)
	}
	_ = r.Register(echoTool{name: "echo"})
	if err := r.Register(echoTool{name: "echo"}); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("duplicate: %v", err)
	}
	if _, err := r.Execute(context.Background(), "missing", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("missing: %v", err)
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	_ = r.Register(echoTool{name: "zeta"})
	_ = r.Register(echoTool{name: "alpha"})

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Fatalf("defs = %+v", defs)
	}
	if defs[0].Description == "" || string(defs[0].Parameters) != `{"type":"object"}` {
		t.Errorf("def = %+v", defs[0])
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("héllo", 2); got != "h...(truncated)" {
		t.Errorf("got %q, want cut before the multi-byte rune", got)
	}
}
