package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meditreat/meditreat/internal/provider"
)

// maxResponseSize caps buffered response bodies.
const maxResponseSize = 10 << 20

const streamBuffer = 64

func (p *Provider) chatRequest(req provider.CompletionRequest, stream bool) chatRequest {
	cr := chatRequest{
		Model:       p.config.Model,
		Messages:    toMessages(req.Messages),
		Tools:       toTools(req.Tools),
		MaxTokens:   p.config.MaxTokens,
		Temperature: req.Temperature,
		TopP:        p.config.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if req.MaxTokens > 0 {
		cr.MaxTokens = req.MaxTokens
	}
	if req.TopP != nil {
		cr.TopP = req.TopP
	}
	if stream {
		cr.StreamOptions = &streamOpts{IncludeUsage: true}
	}
	return cr
}

func (p *Provider) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+p.keys.CurrentKey())
	return req, nil
}

// do executes req on client and returns the capped body. HTTP errors are
// mapped to provider sentinels.
func (p *Provider) do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", provider.ErrProviderDown, err)
	}
	if err := mapHTTPError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Complete sends a buffered completion request.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", p.chatRequest(req, false))
	if err != nil {
		return provider.CompletionResponse{}, err
	}

	body, err := p.do(p.client, httpReq)
	if err != nil {
		return provider.CompletionResponse{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("openai: decode response: %w", err)
	}
	out := fromResponse(&resp)
	p.logger.Debug("completion finished",
		"finish_reason", out.FinishReason,
		"total_tokens", out.Usage.TotalTokens,
	)
	return out, nil
}

// Stream opens an SSE completion. Connection and HTTP errors are returned
// directly; failures after the first byte arrive as StreamChunk.Err.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", p.chatRequest(req, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, mapConnectionError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, mapHTTPError(resp.StatusCode, body)
	}

	ch := make(chan provider.StreamChunk, streamBuffer)
	go newSSEReader(resp.Body, ch).run(ctx)
	return ch, nil
}

// HealthCheck lists models, which exercises authentication without
// spending completion tokens.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := p.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return err
	}
	_, err = p.do(p.client, req)
	return err
}
