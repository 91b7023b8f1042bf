package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meditreat/meditreat/internal/tool"
)

const resultPage = `<html><body>
<div class="results">
  <div class="result">
    <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.who.int%2Fflu&amp;rut=x">Influenza <b>WHO</b></a></h2>
    <a class="result__snippet">Seasonal influenza is an acute respiratory infection.</a>
  </div>
  <div class="result">
    <h2><a class="result__a" href="https://www.cdc.gov/flu/">Flu | CDC</a></h2>
    <a class="result__snippet">Get vaccinated.</a>
  </div>
  <div class="result">
    <h2><a class="result__a" href="https://example.org/third">Third</a></h2>
  </div>
</div>
</body></html>`

func newTestSearch(t *testing.T, status int, body string) *Search {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("q") == "" {
			t.Errorf("missing query form value")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{Endpoint: srv.URL, MaxResults: 2})
}

func TestSearch_ParsesResults(t *testing.T) {
	t.Parallel()

	s := newTestSearch(t, http.StatusOK, resultPage)
	results, err := s.Search(context.Background(), "flu")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].URL != "https://www.who.int/flu" || results[0].Title != "Influenza WHO" {
		t.Errorf("result[0] = %+v", results[0])
	}
	if results[1].Snippet != "Get vaccinated." {
		t.Errorf("result[1] = %+v", results[1])
	}
}

func TestExecute_ReturnsSources(t *testing.T) {
	t.Parallel()

	s := newTestSearch(t, http.StatusOK, resultPage)
	out, err := s.Execute(context.Background(), json.RawMessage(`{"query":"flu"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError || !strings.Contains(out.Content, "1. Influenza WHO") {
		t.Errorf("output = %+v", out)
	}
	if len(out.Sources) != 2 || out.Sources[1].URL != "https://www.cdc.gov/flu/" {
		t.Errorf("sources = %+v", out.Sources)
	}
}

func TestExecute_BackendFailureIsToolOutput(t *testing.T) {
	t.Parallel()

	s := newTestSearch(t, http.StatusServiceUnavailable, "")
	out, err := s.Execute(context.Background(), json.RawMessage(`{"query":"flu"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError {
		t.Errorf("output = %+v, want error output", out)
	}
}

func TestExecute_InvalidArguments(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	if _, err := s.Execute(context.Background(), json.RawMessage(`{"query":"  "}`)); !errors.Is(err, tool.ErrInvalidArguments) {
		t.Errorf("err = %v", err)
	}
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.org%2Fx": "https://a.org/x",
		"https://b.org/":     "https://b.org/",
		"/relative":          "",
		"javascript:alert()": "",
	}
	for in, want := range tests {
		if got := resolveLink(in); got != want {
			t.Errorf("resolveLink(%q) = %q, want %q", in, got, want)
		}
	}
}
