// Package message defines the persisted unit of a conversation: one
// utterance by either the user or the assistant, keyed by (user, chat).
package message

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Sender identifies who authored a message.
type Sender string

// Sender values. No other value is ever persisted.
const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is one of the two known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// ParseSender converts a raw string into a Sender.
func ParseSender(raw string) (Sender, error) {
	s := Sender(raw)
	if !s.Valid() {
		return "", fmt.Errorf("message: unknown sender %q", raw)
	}
	return s, nil
}

// Well-known metadata keys.
const (
	MetaChatID      = "chat_id"
	MetaProvider    = "llm_provider"
	MetaTemperature = "temperature"
	MetaUsername    = "username"
	MetaModel       = "model"
	MetaUsage       = "usage"
)

// Message is a single stored utterance. Messages are immutable once appended.
type Message struct {
	UserID    string
	ChatID    string
	Sender    Sender
	Body      string
	Meta      map[string]any
	CreatedAt time.Time
}

// record is the wire and storage shape of a Message.
type record struct {
	UserID    string         `json:"user_id"`
	ChatID    string         `json:"chat_id"`
	Sender    Sender         `json:"sender"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta"`
	Timestamp string         `json:"timestamp"`
}

// TimeLayout is the ISO-8601 layout used for timestamps.
const TimeLayout = time.RFC3339Nano

// MarshalJSON implements json.Marshaler using the persisted record shape.
func (m Message) MarshalJSON() ([]byte, error) {
	meta := m.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return json.Marshal(record{
		UserID:    m.UserID,
		ChatID:    m.ChatID,
		Sender:    m.Sender,
		Message:   m.Body,
		Meta:      meta,
		Timestamp: m.CreatedAt.UTC().Format(TimeLayout),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	sender, err := ParseSender(string(r.Sender))
	if err != nil {
		return err
	}
	var ts time.Time
	if r.Timestamp != "" {
		ts, err = time.Parse(TimeLayout, r.Timestamp)
		if err != nil {
			return fmt.Errorf("message: invalid timestamp %q: %w", r.Timestamp, err)
		}
	}
	*m = Message{
		UserID:    r.UserID,
		ChatID:    r.ChatID,
		Sender:    sender,
		Body:      r.Message,
		Meta:      r.Meta,
		CreatedAt: ts.UTC(),
	}
	return nil
}

// Clone returns a copy of m whose Meta map is not shared with the original.
// Nested values are copied one level deep.
func (m Message) Clone() Message {
	if m.Meta != nil {
		meta := make(map[string]any, len(m.Meta))
		for k, v := range m.Meta {
			if nested, ok := v.(map[string]any); ok {
				v = maps.Clone(nested)
			}
			meta[k] = v
		}
		m.Meta = meta
	}
	return m
}

// Line renders the message as a "sender: body" transcript line.
func (m Message) Line() string {
	return string(m.Sender) + ": " + m.Body
}
