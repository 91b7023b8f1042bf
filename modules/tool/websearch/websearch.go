// Package websearch implements the web_search tool over the DuckDuckGo
// HTML endpoint, which needs no API key.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/tool"
)

const (
	// Name is the identifier the model calls the tool by.
	Name = "web_search"

	defaultEndpoint   = "https://html.duckduckgo.com/html/"
	defaultMaxResults = 5
	defaultTimeout    = 10 * time.Second
	maxPageSize       = 2 << 20
)

// Config tunes the search backend.
type Config struct {
	Endpoint   string
	MaxResults int
	Timeout    time.Duration
}

// Result is one search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Search is the web_search tool.
type Search struct {
	cfg    Config
	client *http.Client
}

var _ tool.Tool = (*Search)(nil)

// New creates the tool with defaults applied to zero fields.
func New(cfg Config) *Search {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Search{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name implements tool.Tool.
func (s *Search) Name() string { return Name }

// Description implements tool.Tool.
func (s *Search) Description() string {
	return "Search the web for current medical information, guidelines, or facts. " +
		"Use it when the answer depends on recent or specific sources."
}

// Schema implements tool.Tool.
func (s *Search) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"search terms"}},"required":["query"]}`)
}

type arguments struct {
	Query string `json:"query"`
}

// Execute implements tool.Tool. Search failures are reported to the model
// as error output so it can answer without the tool.
func (s *Search) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	var args arguments
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return tool.Output{Content: "query is required", IsError: true}, fmt.Errorf("%w: %s", tool.ErrInvalidArguments, raw)
	}

	results, err := s.Search(ctx, args.Query)
	if err != nil {
		return tool.Output{Content: "search failed: " + err.Error(), IsError: true}, nil
	}
	if len(results) == 0 {
		return tool.Output{Content: "no results"}, nil
	}

	var b strings.Builder
	out := tool.Output{}
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
		out.Sources = append(out.Sources, provider.Source{URL: r.URL, Title: r.Title})
	}
	out.Content = b.String()
	return out, nil
}

// Search queries the endpoint and returns at most MaxResults hits.
func (s *Search) Search(ctx context.Context, query string) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint,
		strings.NewReader(url.Values{"q": {query}}.Encode()))
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "meditreat/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("websearch: parse page: %w", err)
	}
	return parseResults(doc, s.cfg.MaxResults), nil
}

// parseResults walks the result page. A hit is a result__a anchor; the
// next result__snippet element belongs to it.
func parseResults(doc *html.Node, limit int) []Result {
	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.A && hasClass(n, "result__a"):
				if target := resolveLink(attr(n, "href")); target != "" {
					results = append(results, Result{Title: text(n), URL: target})
				}
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				if last := &results[len(results)-1]; last.Snippet == "" {
					last.Snippet = text(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// resolveLink unwraps DuckDuckGo redirect links to the target URL.
func resolveLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
