package summarizer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/meditreat/meditreat/internal/provider"
	"github.com/meditreat/meditreat/internal/provider/providertest"
	"github.com/meditreat/meditreat/internal/summarizer"
	"github.com/meditreat/meditreat/pkg/message"
)

func TestSummarize_BlankHistoryMakesNoCall(t *testing.T) {
	t.Parallel()

	for _, history := range []string{"", "   ", "\n\t"} {
		mock := &providertest.MockProvider{CompleteFunc: providertest.Reply("unused")}
		s := summarizer.New(mock, summarizer.Options{})

		got, err := s.Summarize(context.Background(), history)
		if err != nil {
			t.Fatalf("Summarize(%q): %v", history, err)
		}
		if got != summarizer.NoContext {
			t.Errorf("Summarize(%q) = %q, want %q", history, got, summarizer.NoContext)
		}
		if complete, stream := mock.Calls(); complete+stream != 0 {
			t.Errorf("model called %d times for blank history", complete+stream)
		}
	}
}

func TestSummarize_SendsInstruction(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{CompleteFunc: providertest.Reply("  The user asked about flu.  ")}
	s := summarizer.New(mock, summarizer.Options{})

	got, err := s.Summarize(context.Background(), "user: I have a fever\nassistant: Rest.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "The user asked about flu." {
		t.Errorf("summary = %q", got)
	}

	req := mock.LastRequest()
	if len(req.Messages) != 1 || len(req.Tools) != 0 {
		t.Fatalf("request = %+v", req)
	}
	want := "Summarize the chat history in reported speech in less than 100 words: user: I have a fever\nassistant: Rest."
	if req.Messages[0].Content != want {
		t.Errorf("prompt = %q", req.Messages[0].Content)
	}
}

func TestSummarize_KeepsMostRecentTokens(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{CompleteFunc: providertest.Reply("ok")}
	s := summarizer.New(mock, summarizer.Options{MaxTranscriptTokens: 8})

	history := strings.Repeat("old words here ", 50) + "user: latest question"
	if _, err := s.Summarize(context.Background(), history); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	prompt := mock.LastRequest().Messages[0].Content
	if !strings.HasSuffix(prompt, "latest question") {
		t.Errorf("prompt lost the newest text: %q", prompt)
	}
	if len(prompt) >= len(history) {
		t.Errorf("transcript was not capped (%d chars)", len(prompt))
	}
}

func TestSummarize_WrapsProviderErrors(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{CompleteFunc: providertest.Fail(provider.ErrRateLimit)}
	s := summarizer.New(mock, summarizer.Options{})

	_, err := s.Summarize(context.Background(), "user: hi")
	if !errors.Is(err, summarizer.ErrSummarize) || !errors.Is(err, provider.ErrRateLimit) {
		t.Errorf("err = %v", err)
	}
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	got := summarizer.Transcript([]message.Message{
		{Sender: message.SenderUser, Body: "hello"},
		{Sender: message.SenderAssistant, Body: "hi there"},
	})
	if got != "user: hello\nassistant: hi there" {
		t.Errorf("Transcript = %q", got)
	}
	if summarizer.Transcript(nil) != "" {
		t.Error("empty window should render empty")
	}
}
