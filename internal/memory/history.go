// Package memory implements the context store: an append-only log of chat
// messages keyed by (user, chat), with bounded retrieval and relevance
// re-ranking layered on top of a pluggable Backend.
package memory

import (
	"context"
	"errors"

	"github.com/meditreat/meditreat/pkg/message"
)

// Sentinel errors for store operations.
var (
	// ErrPersistence wraps any backend failure during Append.
	ErrPersistence = errors.New("memory: persistence failed")

	// ErrInvalidSender is returned when a message carries an unknown sender.
	ErrInvalidSender = errors.New("memory: invalid sender")
)

// Backend is the storage primitive behind a Store. Identifiers passed to a
// Backend are already canonical. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Append persists one message and returns it as stored.
	Append(ctx context.Context, msg message.Message) (message.Message, error)

	// Fetch returns up to n messages for the chat, oldest first.
	// Ties on timestamp are broken by insertion order.
	Fetch(ctx context.Context, userID, chatID string, n int) ([]message.Message, error)

	// Purge deletes every message of the chat and returns how many were removed.
	Purge(ctx context.Context, userID, chatID string) (int, error)
}
