package generator

import (
	"bytes"
	"encoding/json"

	"github.com/meditreat/meditreat/internal/provider"
)

// Kind tags a Fragment.
type Kind int

// Fragment kinds.
const (
	KindEmpty Kind = iota
	KindText
	KindUnrecognized
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindUnrecognized:
		return "unrecognized"
	default:
		return "empty"
	}
}

// Fragment is the normalized form of one streamed chunk.
// Pieces is set for KindText, Raw for KindUnrecognized.
type Fragment struct {
	Kind   Kind
	Pieces []string
	Raw    string
}

// Normalize maps a stream chunk onto a Fragment.
//
// Content deltas are text. A Raw payload is decoded when it has one of the
// shapes upstreams are known to emit: a JSON string, an object with a
// "content" string or list of text parts, an object with a "messages" list
// (optionally under a single wrapping key), or a chat completion delta.
// Anything else is Unrecognized and keeps its original text.
func Normalize(c provider.StreamChunk) Fragment {
	raw := decodeRaw(c.Raw)
	if c.Content == "" {
		return raw
	}

	pieces := []string{c.Content}
	switch raw.Kind {
	case KindText:
		pieces = append(pieces, raw.Pieces...)
	case KindUnrecognized:
		pieces = append(pieces, raw.Raw)
	}
	return Fragment{Kind: KindText, Pieces: pieces}
}

// Texts returns the text a fragment contributes to the reply.
func (f Fragment) Texts() []string {
	switch f.Kind {
	case KindText:
		return f.Pieces
	case KindUnrecognized:
		return []string{f.Raw}
	default:
		return nil
	}
}

func decodeRaw(raw json.RawMessage) Fragment {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Fragment{Kind: KindEmpty}
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return Fragment{Kind: KindUnrecognized, Raw: string(raw)}
	}

	switch val := v.(type) {
	case nil:
		return Fragment{Kind: KindEmpty}
	case string:
		return text(val)
	case map[string]any:
		if len(val) == 0 {
			return Fragment{Kind: KindEmpty}
		}
		if pieces, ok := objectPieces(val, true); ok {
			return text(pieces...)
		}
	}
	return Fragment{Kind: KindUnrecognized, Raw: string(raw)}
}

// objectPieces extracts text from the known object shapes. ok is false
// when the object matches none of them.
func objectPieces(obj map[string]any, unwrap bool) (pieces []string, ok bool) {
	if content, found := obj["content"]; found {
		return contentPieces(content)
	}
	if msgs, found := obj["messages"].([]any); found {
		for _, m := range msgs {
			sub, isObj := m.(map[string]any)
			if !isObj || isToolMessage(sub) {
				continue
			}
			p, _ := contentPieces(sub["content"])
			pieces = append(pieces, p...)
		}
		return pieces, true
	}
	if choices, found := obj["choices"].([]any); found {
		if len(choices) == 0 {
			return nil, true
		}
		first, _ := choices[0].(map[string]any)
		delta, isObj := first["delta"].(map[string]any)
		if !isObj {
			return nil, false
		}
		s, _ := delta["content"].(string)
		return []string{s}, true
	}
	if unwrap && len(obj) == 1 {
		for _, inner := range obj {
			if node, isObj := inner.(map[string]any); isObj {
				if _, hasMsgs := node["messages"]; hasMsgs {
					return objectPieces(node, false)
				}
			}
		}
	}
	return nil, false
}

// contentPieces reads a message content field: a string or a list of parts.
func contentPieces(content any) ([]string, bool) {
	switch c := content.(type) {
	case nil:
		return nil, true
	case string:
		return []string{c}, true
	case []any:
		var pieces []string
		for _, part := range c {
			p, isObj := part.(map[string]any)
			if !isObj || p["type"] != "text" {
				continue
			}
			if s, isStr := p["text"].(string); isStr {
				pieces = append(pieces, s)
			}
		}
		return pieces, true
	default:
		return nil, false
	}
}

func isToolMessage(m map[string]any) bool {
	return m["type"] == "tool" || m["role"] == "tool"
}

func text(pieces ...string) Fragment {
	out := pieces[:0:0]
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return Fragment{Kind: KindEmpty}
	}
	return Fragment{Kind: KindText, Pieces: out}
}
