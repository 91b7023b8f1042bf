package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/turn"
)

type fakeTurns struct {
	got turn.Request
	err error
}

func (f *fakeTurns) Run(_ context.Context, req turn.Request) (turn.Result, error) {
	f.got = req
	if f.err != nil {
		return turn.Result{}, f.err
	}
	return turn.Result{
		Reply:   "Drink fluids.",
		Sources: []provider.Source{{URL: "https://who.int/flu"}},
	}, nil
}

type fakeHistory struct{ ok bool }

func (h fakeHistory) Clear(context.Context, string, string) bool { return h.ok }

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %+v", res.Content)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Content[0])
	}
	return tc.Text
}

func TestAsk(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{}
	s := New("test", turns, nil, nil)

	res, err := s.handleAsk(context.Background(), call("ask", map[string]any{
		"user_id": "u1", "chat_id": "c1", "message": "flu?", "llm": "anthropic",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if got := text(t, res); got != "Drink fluids.\n\nSources:\n- https://who.int/flu" {
		t.Errorf("text = %q", got)
	}
	if turns.got.UserID != "u1" || turns.got.ChatID != "c1" || turns.got.Message != "flu?" || turns.got.LLM != "anthropic" {
		t.Errorf("request = %+v", turns.got)
	}
}

func TestAsk_ErrorsAreSanitized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{turn.ErrValidation, turn.ValidationText},
		{errors.Join(turn.ErrTurn, errors.New("dial tcp 10.0.0.1")), turn.InternalText},
	}
	for _, tt := range tests {
		s := New("test", &fakeTurns{err: tt.err}, nil, nil)
		res, err := s.handleAsk(context.Background(), call("ask", map[string]any{}))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError || text(t, res) != tt.want {
			t.Errorf("result = %+v, want error %q", res, tt.want)
		}
	}
}

func TestClearHistory(t *testing.T) {
	t.Parallel()

	s := New("test", &fakeTurns{}, fakeHistory{ok: true}, nil)
	res, err := s.handleClear(context.Background(), call("clear_history", map[string]any{"user_id": "u", "chat_id": "c"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || text(t, res) != "cleared" {
		t.Errorf("result = %+v", res)
	}

	res, _ = s.handleClear(context.Background(), call("clear_history", map[string]any{"user_id": "u"}))
	if !res.IsError {
		t.Error("missing chat_id must be an error result")
	}

	s = New("test", &fakeTurns{}, fakeHistory{ok: false}, nil)
	res, _ = s.handleClear(context.Background(), call("clear_history", map[string]any{"user_id": "u", "chat_id": "c"}))
	if !res.IsError {
		t.Error("failed clear must be an error result")
	}
}
