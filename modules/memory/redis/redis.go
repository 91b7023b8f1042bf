// Package redis implements a memory.Backend on Redis. Each chat is a sorted
// set scored by creation time in microseconds; members carry a zero-padded
// sequence prefix so equal timestamps keep insertion order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meditreat/meditreat/internal/memory"
	"github.com/meditreat/meditreat/pkg/message"
)

const defaultKeyPrefix = "meditreat"

// Config holds the Redis backend configuration.
type Config struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Defaults fills zero-valued fields.
func (c *Config) Defaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultKeyPrefix
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if c.DB < 0 {
		return fmt.Errorf("redis: db must be non-negative, got %d", c.DB)
	}
	return nil
}

// Compile-time interface guard.
var _ memory.Backend = (*Backend)(nil)

// Backend stores chat messages in Redis sorted sets.
type Backend struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	logger.Info("redis store opened", "addr", cfg.Addr, "db", cfg.DB)
	return &Backend{client: client, prefix: cfg.KeyPrefix, logger: logger}, nil
}

func (b *Backend) chatKey(userID, chatID string) string {
	return b.prefix + ":chat:" + userID + ":" + chatID
}

func (b *Backend) seqKey(userID, chatID string) string {
	return b.chatKey(userID, chatID) + ":seq"
}

// Append adds the message to the chat's sorted set.
func (b *Backend) Append(ctx context.Context, msg message.Message) (message.Message, error) {
	seq, err := b.client.Incr(ctx, b.seqKey(msg.UserID, msg.ChatID)).Result()
	if err != nil {
		return message.Message{}, fmt.Errorf("redis: next sequence: %w", err)
	}

	member, err := encodeMember(seq, msg)
	if err != nil {
		return message.Message{}, err
	}

	err = b.client.ZAdd(ctx, b.chatKey(msg.UserID, msg.ChatID), goredis.Z{
		Score:  float64(msg.CreatedAt.UnixMicro()),
		Member: member,
	}).Err()
	if err != nil {
		return message.Message{}, fmt.Errorf("redis: append message: %w", err)
	}
	return msg, nil
}

// Fetch returns up to n messages of the chat in chronological order.
func (b *Backend) Fetch(ctx context.Context, userID, chatID string, n int) ([]message.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	members, err := b.client.ZRange(ctx, b.chatKey(userID, chatID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: fetch: %w", err)
	}

	msgs := make([]message.Message, 0, len(members))
	for _, member := range members {
		msg, err := decodeMember(member)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Purge deletes the chat set and its sequence counter atomically.
func (b *Backend) Purge(ctx context.Context, userID, chatID string) (int, error) {
	key := b.chatKey(userID, chatID)

	var card *goredis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		card = pipe.ZCard(ctx, key)
		pipe.Del(ctx, key, b.seqKey(userID, chatID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: purge: %w", err)
	}
	return int(card.Val()), nil
}

// Ping verifies the server is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Stop closes the client. It satisfies the lifecycle Stopper contract.
func (b *Backend) Stop(_ context.Context) error {
	b.logger.Info("redis store closing")
	return b.client.Close()
}

var errBadMember = errors.New("redis: malformed member")

// encodeMember renders "<seq>|<json>" with seq zero-padded to 20 digits so
// lexical order matches numeric order.
func encodeMember(seq int64, msg message.Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("redis: marshal message: %w", err)
	}
	return fmt.Sprintf("%020d|%s", seq, data), nil
}

func decodeMember(member string) (message.Message, error) {
	_, payload, ok := strings.Cut(member, "|")
	if !ok {
		return message.Message{}, errBadMember
	}
	var msg message.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return message.Message{}, fmt.Errorf("redis: unmarshal message: %w", err)
	}
	if msg.Meta == nil {
		msg.Meta = map[string]any{}
	}
	return msg, nil
}
