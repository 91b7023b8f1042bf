package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/meditreat/meditreat/internal/provider"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, keys provider.KeySource) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	if keys == nil {
		keys = provider.StaticKey("sk-test")
	}
	p, err := New(Config{Model: "gpt-4o-mini", BaseURL: srv.URL}, keys, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func sse(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", e)
	}
}

func collect(t *testing.T, ch <-chan provider.StreamChunk) []provider.StreamChunk {
	t.Helper()
	var out []provider.StreamChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, nil, nil); err == nil {
		t.Error("nil key source should fail")
	}
	if _, err := New(Config{Model: "custom-model"}, provider.StaticKey("k"), nil); err == nil {
		t.Error("unknown model without context_window should fail")
	}
	p, err := New(Config{Model: "custom-model", ContextWindow: 4096}, provider.StaticKey("k"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ContextWindowSize() != 4096 || p.ModelName() != "custom-model" {
		t.Errorf("got window=%d model=%q", p.ContextWindowSize(), p.ModelName())
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		got chatRequest
	)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "Drink water.",
					"annotations": [{"type": "url_citation", "url_citation": {"url": "https://who.int/x", "title": "WHO"}}]
				},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`))
	}, nil)

	temp := 0.2
	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hello"}},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Drink water." || resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].URL != "https://who.int/x" {
		t.Errorf("sources = %+v", resp.Sources)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.Model != "gpt-4o-mini" || got.Stream || got.Temperature == nil || *got.Temperature != 0.2 {
		t.Errorf("request = %+v", got)
	}
}

func TestComplete_UsesCurrentKey(t *testing.T) {
	t.Parallel()

	auth, _ := provider.NewAuthProfile("k1", "k2")
	var (
		mu   sync.Mutex
		seen []string
	)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}, auth)

	_, _ = p.Complete(context.Background(), provider.CompletionRequest{})
	auth.Rotate()
	_, _ = p.Complete(context.Background(), provider.CompletionRequest{})

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(seen, ",") != "Bearer k1,Bearer k2" {
		t.Errorf("keys = %v", seen)
	}
}

func TestComplete_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, provider.ErrRateLimit},
		{http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, provider.ErrAuth},
		{http.StatusBadRequest, `{"error":{"message":"too long","code":"context_length_exceeded"}}`, provider.ErrContextLength},
		{http.StatusBadGateway, `upstream`, provider.ErrProviderDown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)
			_, err := p.Complete(context.Background(), provider.CompletionRequest{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStream_TextDeltas(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		got chatRequest
	)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		_, _ = w.Write([]byte(": keep-alive\n\n"))
		sse(w,
			`{"choices":[{"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`,
			`[DONE]`,
		)
	}, nil)

	ch, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	chunks := collect(t, ch)

	var text strings.Builder
	var finish provider.FinishReason
	var usage *provider.TokenUsage
	for _, c := range chunks {
		if c.Err != nil {
			t.Fatalf("unexpected error chunk: %v", c.Err)
		}
		text.WriteString(c.Content)
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.Usage != nil {
			usage = c.Usage
		}
	}
	if text.String() != "Hello" || finish != provider.FinishReasonStop {
		t.Errorf("text=%q finish=%q", text.String(), finish)
	}
	if usage == nil || usage.TotalTokens != 6 {
		t.Errorf("usage = %+v", usage)
	}
	mu.Lock()
	defer mu.Unlock()
	if !got.Stream || got.StreamOptions == nil || !got.StreamOptions.IncludeUsage {
		t.Errorf("request stream flags = %+v", got)
	}
}

func TestStream_RawPassthrough(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		sse(w,
			`{"messages":[{"type":"ai","content":"Rest."}]}`,
			`"plain string"`,
			`{}`,
			`[DONE]`,
		)
	}, nil)

	ch, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	chunks := collect(t, ch)

	want := []string{`{"messages":[{"type":"ai","content":"Rest."}]}`, `"plain string"`, `{}`}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if string(c.Raw) != want[i] || c.Content != "" {
			t.Errorf("chunk %d = %+v", i, c)
		}
	}
}

func TestStream_ToolCallsAssembled(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		sse(w,
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"b","function":{"name":"second","arguments":"{}"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"web_search","arguments":"{\"query\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"flu\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			`[DONE]`,
		)
	}, nil)

	ch, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	chunks := collect(t, ch)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	calls := chunks[0].ToolCalls
	if chunks[0].FinishReason != provider.FinishReasonToolUse || len(calls) != 2 {
		t.Fatalf("chunk = %+v", chunks[0])
	}
	if calls[0].Name != "web_search" || string(calls[0].Arguments) != `{"query":"flu"}` || calls[1].ID != "b" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestStream_MalformedEvent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		sse(w, `{"choices":[{"delta":{"content":"ok"}}]}`, `{not json`)
	}, nil)

	ch, err := p.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	chunks := collect(t, ch)
	last := chunks[len(chunks)-1]
	if !errors.Is(last.Err, errMalformedEvent) {
		t.Errorf("last chunk err = %v", last.Err)
	}
}

func TestStream_HTTPErrorBeforeBody(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	if _, err := p.Stream(context.Background(), provider.CompletionRequest{}); !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, nil)

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
