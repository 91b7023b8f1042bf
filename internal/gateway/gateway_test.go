package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/meditreat/meditreat/internal/metrics"
	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/turn"
	"github.com/meditreat/meditreat/pkg/message"
)

// fakeTurns answers every message with its upper-cased text, split in words.
type fakeTurns struct {
	mu   sync.Mutex
	reqs []turn.Request
	err  error
}

func (f *fakeTurns) record(req turn.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Message) == "" {
		return turn.ErrValidation
	}
	return f.err
}

func (f *fakeTurns) Run(_ context.Context, req turn.Request) (turn.Result, error) {
	if err := f.record(req); err != nil {
		return turn.Result{}, err
	}
	return turn.Result{
		UserID:    req.UserID,
		Reply:     strings.ToUpper(req.Message),
		Sources:   []provider.Source{{URL: "https://who.int"}},
		Timestamp: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeTurns) Stream(ctx context.Context, req turn.Request, sink turn.Sink) (turn.Result, error) {
	if err := f.record(req); err != nil {
		return turn.Result{}, err
	}
	for _, w := range strings.Fields(strings.ToUpper(req.Message)) {
		if err := sink.Send(ctx, w); err != nil {
			return turn.Result{}, errors.Join(turn.ErrTransport, err)
		}
	}
	return turn.Result{}, sink.Send(ctx, turn.DoneMarker)
}

func (f *fakeTurns) requests() []turn.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turn.Request(nil), f.reqs...)
}

type fakeHistory struct {
	cleared bool

	mu        sync.Mutex
	lastQuery string
	lastLimit int
}

func (h *fakeHistory) Retrieve(_ context.Context, userID, chatID, query string, limit int) []message.Message {
	h.mu.Lock()
	h.lastQuery, h.lastLimit = query, limit
	h.mu.Unlock()
	return []message.Message{{UserID: userID, ChatID: chatID, Sender: message.SenderUser, Body: "hi"}}
}

func (h *fakeHistory) Clear(context.Context, string, string) bool { return h.cleared }

type statusMap map[string]string

func (s statusMap) Status() map[string]string { return s }

func newTestServer(t *testing.T, cfg Config, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg, deps).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{}, Deps{Turns: &fakeTurns{}, Providers: statusMap{"openai": "healthy"}})
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var hr HealthResponse
	if err := json.Unmarshal([]byte(body), &hr); err != nil {
		t.Fatal(err)
	}
	if hr.Status != "ok" || hr.Providers["openai"] != "healthy" {
		t.Errorf("health = %+v", hr)
	}
}

func TestChat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		turnErr  error
		wantCode int
		wantBody string
	}{
		{"ok", `{"user_id":"u1","chat_id":"c1","message":"rest well"}`, nil, 200, `"message":"REST WELL"`},
		{"sources", `{"user_id":"u1","chat_id":"c1","message":"x"}`, nil, 200, `"sources":[{"url":"https://who.int"}]`},
		{"timestamp", `{"user_id":"u1","chat_id":"c1","message":"x"}`, nil, 200, `"timestamp":"2025-05-01T12:00:00Z"`},
		{"missing message", `{"user_id":"u1","chat_id":"c1"}`, nil, 400, `{"error":"user_id and message are required"}`},
		{"bad json", `{"user_id":`, nil, 400, `{"error":"user_id and message are required"}`},
		{"internal", `{"user_id":"u1","chat_id":"c1","message":"x"}`, errors.Join(turn.ErrTurn, errors.New("db password=hunter2")), 500, `{"error":"An internal error occurred."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, Config{}, Deps{Turns: &fakeTurns{err: tt.turnErr}})
			resp, body := do(t, http.MethodPost, srv.URL+"/chat", tt.body, nil)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", body, tt.wantBody)
			}
			if strings.Contains(body, "hunter2") {
				t.Error("cause leaked to client")
			}
		})
	}
}

func TestChat_PassesOptionalFields(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{}
	srv := newTestServer(t, Config{}, Deps{Turns: turns})
	do(t, http.MethodPost, srv.URL+"/chat", `{"user_id":"u","chat_id":"c","message":"m","username":"Ann","llm":"anthropic","temperature":0.5}`, nil)

	got := turns.requests()[0]
	if got.Username != "Ann" || got.LLM != "anthropic" || got.Temperature == nil || *got.Temperature != 0.5 {
		t.Errorf("request = %+v", got)
	}
}

func TestChat_RateLimited(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{MessagesPerMinute: 1}, Deps{Turns: &fakeTurns{}})
	body := `{"user_id":"u1","chat_id":"c1","message":"x"}`
	if resp, _ := do(t, http.MethodPost, srv.URL+"/chat", body, nil); resp.StatusCode != 200 {
		t.Fatalf("first status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/chat", body, nil); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second status = %d", resp.StatusCode)
	}
}

func TestChat_BlankUserIsNotRateLimited(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{MessagesPerMinute: 1}, Deps{Turns: &fakeTurns{}})
	for range 3 {
		if resp, _ := do(t, http.MethodPost, srv.URL+"/chat", `{"user_id":" ","message":"x"}`, nil); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("blank user status = %d, want 400", resp.StatusCode)
		}
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/chat", `{"user_id":"u1","chat_id":"c1","message":"x"}`, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("first real request status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/chat", `{"user_id":"u2","chat_id":"c1","message":"x"}`, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("other user status = %d", resp.StatusCode)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn, ctx
}

func readFrames(t *testing.T, ctx context.Context, conn *websocket.Conn, until string) []string {
	t.Helper()
	var frames []string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v (frames so far %q)", err, frames)
		}
		frames = append(frames, string(data))
		if strings.HasPrefix(string(data), until) {
			return frames
		}
	}
}

func TestWebSocket_SequentialTurns(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	srv := newTestServer(t, Config{}, Deps{Turns: &fakeTurns{}, Metrics: m})
	conn, ctx := dialWS(t, srv)

	send := func(v string) {
		if err := conn.Write(ctx, websocket.MessageText, []byte(v)); err != nil {
			t.Fatal(err)
		}
	}

	send(`{"user_id":"u1","chat_id":"c1","message":"drink water"}`)
	if got := readFrames(t, ctx, conn, turn.DoneMarker); strings.Join(got, "|") != "DRINK|WATER|[DONE]" {
		t.Errorf("frames = %q", got)
	}

	send(`{"user_id":"","chat_id":"c1","message":"x"}`)
	if got := readFrames(t, ctx, conn, turn.ErrorPrefix); got[0] != "[ERROR] user_id and message are required" {
		t.Errorf("frames = %q", got)
	}

	send(`not json`)
	if got := readFrames(t, ctx, conn, turn.ErrorPrefix); got[0] != "[ERROR] user_id and message are required" {
		t.Errorf("frames = %q", got)
	}

	send(`{"user_id":"u1","chat_id":"c1","message":"again"}`)
	if got := readFrames(t, ctx, conn, turn.DoneMarker); strings.Join(got, "|") != "AGAIN|[DONE]" {
		t.Errorf("frames = %q", got)
	}
}

func TestWebSocket_InternalError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{}, Deps{Turns: &fakeTurns{err: errors.Join(turn.ErrTurn, errors.New("boom"))}})
	conn, ctx := dialWS(t, srv)

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"user_id":"u","chat_id":"c","message":"x"}`)); err != nil {
		t.Fatal(err)
	}
	if got := readFrames(t, ctx, conn, turn.ErrorPrefix); got[0] != "[ERROR] An internal error occurred." {
		t.Errorf("frames = %q", got)
	}
}

func TestAdmin(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{cleared: true}
	srv := newTestServer(t, Config{AdminToken: "admin-secret"}, Deps{Turns: &fakeTurns{}, History: history})
	auth := http.Header{"Authorization": {"Bearer admin-secret"}}

	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/chats/u/c/messages", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/chats/u/c/messages", "", http.Header{"Authorization": {"Bearer wrong"}}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/chats/u/c/messages?limit=5&q=fever", "", auth)
	if resp.StatusCode != 200 || !strings.Contains(body, `"message":"hi"`) {
		t.Errorf("history = %d %s", resp.StatusCode, body)
	}
	history.mu.Lock()
	query, limit := history.lastQuery, history.lastLimit
	history.mu.Unlock()
	if query != "fever" || limit != 5 {
		t.Errorf("query = %q, limit = %d", query, limit)
	}

	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/chats/u/c/messages?limit=0", "", auth); resp.StatusCode != 400 {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodDelete, srv.URL+"/api/chats/u/c", "", auth)
	if resp.StatusCode != 200 || strings.TrimSpace(body) != `{"cleared":true}` {
		t.Errorf("clear = %d %s", resp.StatusCode, body)
	}
}

func TestAdmin_NotMountedWithoutToken(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{}, Deps{Turns: &fakeTurns{}, History: &fakeHistory{}})
	if resp, _ := do(t, http.MethodDelete, srv.URL+"/api/chats/u/c", "", nil); resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.TurnFinished("buffered", "ok", time.Millisecond)
	srv := newTestServer(t, Config{}, Deps{Turns: &fakeTurns{}, Metrics: m})

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	if resp.StatusCode != 200 || !strings.Contains(body, "meditreat_turns_total") {
		t.Errorf("metrics = %d", resp.StatusCode)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	g := New(Config{Bind: "127.0.0.1:0"}, Deps{Turns: &fakeTurns{}})
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}

	if err := New(Config{Bind: "not an address"}, Deps{}).Validate(); err == nil {
		t.Error("expected invalid bind error")
	}
}
