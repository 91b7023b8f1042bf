package memory

import (
	"context"
	"testing"
	"time"

	"github.com/meditreat/meditreat/pkg/message"
)

func TestInMemoryBackend_OrdersByTimestamp(t *testing.T) {
	t.Parallel()

	b := NewInMemoryBackend()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		body   string
		offset time.Duration
	}{
		{"late", 3 * time.Second},
		{"early", time.Second},
		{"tie-first", 2 * time.Second},
		{"tie-second", 2 * time.Second},
	} {
		if _, err := b.Append(context.Background(), message.Message{
			UserID: "u", ChatID: "c", Sender: message.SenderUser, Body: tc.body,
			CreatedAt: base.Add(tc.offset),
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := b.Fetch(context.Background(), "u", "c", 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"early", "tie-first", "tie-second", "late"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Body != want[i] {
			t.Errorf("Fetch[%d] = %q, want %q", i, got[i].Body, want[i])
		}
	}
}

func TestInMemoryBackend_FetchBounds(t *testing.T) {
	t.Parallel()

	b := NewInMemoryBackend()
	for range 3 {
		_, _ = b.Append(context.Background(), message.Message{UserID: "u", ChatID: "c", Sender: message.SenderUser})
	}

	for _, n := range []int{-1, 0} {
		got, err := b.Fetch(context.Background(), "u", "c", n)
		if err != nil || len(got) != 0 {
			t.Errorf("Fetch(n=%d) = %d msgs, err %v", n, len(got), err)
		}
	}
	got, _ := b.Fetch(context.Background(), "u", "c", 2)
	if len(got) != 2 {
		t.Errorf("Fetch(2) = %d msgs", len(got))
	}
	got, _ = b.Fetch(context.Background(), "u", "missing", 2)
	if len(got) != 0 {
		t.Errorf("unknown chat returned %d msgs", len(got))
	}
}

func TestInMemoryBackend_FetchReturnsCopies(t *testing.T) {
	t.Parallel()

	b := NewInMemoryBackend()
	_, _ = b.Append(context.Background(), message.Message{
		UserID: "u", ChatID: "c", Sender: message.SenderUser, Meta: map[string]any{"k": "v"},
	})

	got, _ := b.Fetch(context.Background(), "u", "c", 1)
	got[0].Meta["k"] = "mutated"

	again, _ := b.Fetch(context.Background(), "u", "c", 1)
	if again[0].Meta["k"] != "v" {
		t.Error("stored message was mutated through a fetched copy")
	}
}

func TestInMemoryBackend_PurgeIsScoped(t *testing.T) {
	t.Parallel()

	b := NewInMemoryBackend()
	_, _ = b.Append(context.Background(), message.Message{UserID: "u", ChatID: "a", Sender: message.SenderUser})
	_, _ = b.Append(context.Background(), message.Message{UserID: "u", ChatID: "a", Sender: message.SenderAssistant})
	_, _ = b.Append(context.Background(), message.Message{UserID: "u", ChatID: "b", Sender: message.SenderUser})

	n, err := b.Purge(context.Background(), "u", "a")
	if err != nil || n != 2 {
		t.Fatalf("Purge = %d, %v; want 2, nil", n, err)
	}
	if b.Len("u", "b") != 1 {
		t.Error("Purge removed messages from another chat")
	}
}

func TestRank_StableAndCaseInsensitive(t *testing.T) {
	t.Parallel()

	msgs := []message.Message{{Body: "x"}, {Body: "Fever"}, {Body: "y"}, {Body: "high FEVER"}}
	got := rank(msgs, "  fever ")

	want := []string{"Fever", "high FEVER", "x", "y"}
	for i := range want {
		if got[i].Body != want[i] {
			t.Errorf("rank[%d] = %q, want %q", i, got[i].Body, want[i])
		}
	}
}
