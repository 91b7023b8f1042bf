package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/meditreat/meditreat/pkg/message"
)

// DefaultHistoryLimit is the retrieval limit used when callers pass a
// non-positive limit.
const DefaultHistoryLimit = 3

// Options configures a Store.
type Options struct {
	// HistoryLimit is the default window size. Zero means DefaultHistoryLimit.
	HistoryLimit int

	// Logger receives retrieval and purge failures. Nil discards.
	Logger *slog.Logger

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Store applies identifier canonicalization and the retrieval policy on top
// of a Backend.
type Store struct {
	backend Backend
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore wraps backend with the store policy.
func NewStore(backend Backend, opts Options) *Store {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend: backend,
		limit:   opts.HistoryLimit,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Append canonicalizes the message identifiers and writes it to the backend.
// A zero CreatedAt is stamped with the current time. Meta is normalized to
// its JSON form (numbers become float64) so the returned message equals what
// any backend later yields. Backend errors are wrapped with ErrPersistence
// and returned to the caller.
func (s *Store) Append(ctx context.Context, msg message.Message) (message.Message, error) {
	if !msg.Sender.Valid() {
		return message.Message{}, fmt.Errorf("%w: %q", ErrInvalidSender, msg.Sender)
	}

	meta, err := normalizeMeta(msg.Meta)
	if err != nil {
		return message.Message{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	msg.Meta = meta
	msg.UserID = message.CanonicalID(msg.UserID)
	msg.ChatID = message.CanonicalID(msg.ChatID)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	stored, err := s.backend.Append(ctx, msg)
	if err != nil {
		return message.Message{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return stored, nil
}

// Retrieve returns up to limit messages of the chat, oldest first.
//
// Twice the limit is fetched as a candidate window. A non-blank query
// re-ranks the window so that messages containing it (case-insensitively)
// come first, keeping chronological order within each group. The result is
// then truncated to limit. With a blank query the newest messages beyond
// limit inside the window are dropped.
//
// Backend failures are logged and yield an empty result.
func (s *Store) Retrieve(ctx context.Context, userID, chatID, query string, limit int) []message.Message {
	if limit <= 0 {
		limit = s.limit
	}
	userID = message.CanonicalID(userID)
	chatID = message.CanonicalID(chatID)

	window, err := s.backend.Fetch(ctx, userID, chatID, 2*limit)
	if err != nil {
		s.logger.Warn("memory: retrieve failed, continuing without context",
			"user_id", userID,
			"chat_id", chatID,
			"error", err,
		)
		return []message.Message{}
	}

	window = rank(window, query)
	if len(window) > limit {
		window = window[:limit]
	}
	return window
}

// Clear deletes every message of the chat. It reports false, after
// logging, when the backend fails.
func (s *Store) Clear(ctx context.Context, userID, chatID string) bool {
	userID = message.CanonicalID(userID)
	chatID = message.CanonicalID(chatID)

	n, err := s.backend.Purge(ctx, userID, chatID)
	if err != nil {
		s.logger.Error("memory: clear failed",
			"user_id", userID,
			"chat_id", chatID,
			"error", err,
		)
		return false
	}
	s.logger.Info("memory: chat cleared",
		"user_id", userID,
		"chat_id", chatID,
		"deleted", n,
	)
	return true
}

// normalizeMeta returns a deep copy of meta in the shape json.Unmarshal
// produces. Nil becomes an empty map.
func normalizeMeta(meta map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(meta) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("memory: encode meta: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("memory: decode meta: %w", err)
	}
	return out, nil
}
