package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/meditreat/meditreat/pkg/message"
)

// chatKey identifies one conversation.
type chatKey struct {
	user string
	chat string
}

// InMemoryBackend is a thread-safe Backend holding messages in process memory.
// Contents are lost on restart.
type InMemoryBackend struct {
	mu    sync.RWMutex
	chats map[chatKey][]message.Message
}

// NewInMemoryBackend creates an empty backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		chats: make(map[chatKey][]message.Message),
	}
}

// Compile-time interface check.
var _ Backend = (*InMemoryBackend)(nil)

// Append adds a message to the chat log, keeping it sorted by timestamp.
func (b *InMemoryBackend) Append(_ context.Context, msg message.Message) (message.Message, error) {
	msg = msg.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()

	key := chatKey{user: msg.UserID, chat: msg.ChatID}
	log := b.chats[key]

	// Insert after every message with an equal or earlier timestamp so
	// ties keep insertion order.
	idx, _ := slices.BinarySearchFunc(log, msg, func(e, t message.Message) int {
		if e.CreatedAt.After(t.CreatedAt) {
			return 1
		}
		return -1
	})
	b.chats[key] = slices.Insert(log, idx, msg)
	return msg.Clone(), nil
}

// Fetch returns up to n messages, oldest first.
func (b *InMemoryBackend) Fetch(_ context.Context, userID, chatID string, n int) ([]message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	log := b.chats[chatKey{user: userID, chat: chatID}]
	n = max(0, min(n, len(log)))

	out := make([]message.Message, n)
	for i := range n {
		out[i] = log[i].Clone()
	}
	return out, nil
}

// Purge removes the chat log.
func (b *InMemoryBackend) Purge(_ context.Context, userID, chatID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := chatKey{user: userID, chat: chatID}
	n := len(b.chats[key])
	delete(b.chats, key)
	return n, nil
}

// Len returns the number of stored messages for a chat.
func (b *InMemoryBackend) Len(userID, chatID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chats[chatKey{user: userID, chat: chatID}])
}
