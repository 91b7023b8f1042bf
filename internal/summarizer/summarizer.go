// Package summarizer condenses a conversation transcript into a short
// reported-speech summary used as context for the next answer.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/pkg/message"
)

// NoContext is returned instead of a summary when there is no history.
const NoContext = "No context available."

// DefaultMaxTranscriptTokens caps the transcript sent to the model.
const DefaultMaxTranscriptTokens = 2000

const instruction = "Summarize the chat history in reported speech in less than 100 words: "

// ErrSummarize wraps every failure to produce a summary.
var ErrSummarize = errors.New("summarizer: summarization failed")

// Options configures a Summarizer.
type Options struct {
	// MaxTranscriptTokens bounds the transcript. The oldest tokens are
	// dropped first. Zero means DefaultMaxTranscriptTokens.
	MaxTranscriptTokens int

	Logger *slog.Logger
}

// Summarizer asks a model to summarize chat history.
type Summarizer struct {
	provider  provider.Provider
	maxTokens int
	logger    *slog.Logger

	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
}

// New creates a Summarizer backed by p.
func New(p provider.Provider, opts Options) *Summarizer {
	if opts.MaxTranscriptTokens <= 0 {
		opts.MaxTranscriptTokens = DefaultMaxTranscriptTokens
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Summarizer{
		provider:  p,
		maxTokens: opts.MaxTranscriptTokens,
		logger:    opts.Logger,
	}
}

// Transcript renders a conversation window as "sender: body" lines.
func Transcript(window []message.Message) string {
	lines := make([]string, len(window))
	for i, m := range window {
		lines[i] = m.Line()
	}
	return strings.Join(lines, "\n")
}

// Summarize returns a summary of history. Blank history yields NoContext
// without calling the model.
func (s *Summarizer) Summarize(ctx context.Context, history string) (string, error) {
	if strings.TrimSpace(history) == "" {
		return NoContext, nil
	}

	capped, err := s.capTokens(history)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarize, err)
	}

	temperature := 0.0
	resp, err := s.provider.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleUser, Content: instruction + capped},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarize, err)
	}

	summary := strings.TrimSpace(resp.Content)
	s.logger.Debug("summary generated",
		"model", s.provider.ModelName(),
		"transcript_chars", len(capped),
		"summary_chars", len(summary),
	)
	return summary, nil
}

// capTokens keeps the most recent maxTokens tokens of text.
func (s *Summarizer) capTokens(text string) (string, error) {
	s.codecOnce.Do(func() {
		s.codec, s.codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if s.codecErr != nil {
		return "", fmt.Errorf("load tokenizer: %w", s.codecErr)
	}

	ids, _, err := s.codec.Encode(text)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	if len(ids) <= s.maxTokens {
		return text, nil
	}

	s.logger.Debug("transcript truncated", "tokens", len(ids), "kept", s.maxTokens)
	out, err := s.codec.Decode(ids[len(ids)-s.maxTokens:])
	if err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	return out, nil
}
