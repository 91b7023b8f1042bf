// Package events publishes domain events to a watermill transport so other
// processes can react to completed turns.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// TopicTurnCompleted is the default topic for TurnCompleted events.
const TopicTurnCompleted = "turn.completed"

// Backend names.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrNoSubscriber is returned by Subscribe on transports that do not
// support in-process subscription.
var ErrNoSubscriber = errors.New("events: backend does not support subscriptions")

// TurnCompleted is emitted once both sides of a turn have been handled.
type TurnCompleted struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ChatID     string    `json:"chat_id"`
	Mode       string    `json:"mode"`
	LLM        string    `json:"llm_provider"`
	Model      string    `json:"model,omitempty"`
	Degraded   bool      `json:"degraded"`
	Persisted  bool      `json:"persisted"`
	ReplyChars int       `json:"reply_chars"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// RedisConfig addresses the Redis server used for Redis Streams.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config selects the transport.
type Config struct {
	Backend string      `yaml:"backend"`
	Topic   string      `yaml:"topic"`
	Redis   RedisConfig `yaml:"redis"`
}

// Bus publishes events. A Bus for the none backend accepts and drops
// everything.
type Bus struct {
	topic     string
	publisher message.Publisher
	channel   *gochannel.GoChannel
	redis     *redis.Client
	logger    *slog.Logger
}

// Open creates the transport described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Topic == "" {
		cfg.Topic = TopicTurnCompleted
	}
	b := &Bus{topic: cfg.Topic, logger: logger}
	wlog := watermill.NewSlogLogger(logger)

	switch cfg.Backend {
	case "", BackendNone:
	case BackendMemory:
		b.channel = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlog)
		b.publisher = b.channel
	case BackendRedis:
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     b.redis,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, wlog)
		if err != nil {
			_ = b.redis.Close()
			return nil, fmt.Errorf("events: redis publisher: %w", err)
		}
		b.publisher = pub
	default:
		return nil, fmt.Errorf("events: unknown backend %q", cfg.Backend)
	}
	return b, nil
}

// Enabled reports whether events leave the process.
func (b *Bus) Enabled() bool { return b.publisher != nil }

// PublishTurn publishes ev on the configured topic.
func (b *Bus) PublishTurn(ctx context.Context, ev TurnCompleted) error {
	if b.publisher == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = watermill.NewUUID()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("type", TopicTurnCompleted)
	msg.SetContext(ctx)

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	b.logger.Debug("event published", "topic", b.topic, "id", ev.ID)
	return nil
}

// Subscribe returns the in-process event stream of the memory backend.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if b.channel == nil {
		return nil, ErrNoSubscriber
	}
	return b.channel.Subscribe(ctx, b.topic)
}

// Decode parses a TurnCompleted payload.
func Decode(msg *message.Message) (TurnCompleted, error) {
	var ev TurnCompleted
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return TurnCompleted{}, fmt.Errorf("events: decode %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// Stop closes the transport.
func (b *Bus) Stop(_ context.Context) error {
	var errs []error
	if b.publisher != nil {
		errs = append(errs, b.publisher.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	return errors.Join(errs...)
}
