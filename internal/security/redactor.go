// Package security keeps credentials out of logs and bounds how fast a
// single user can drive the model.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret found in log output.
const RedactPlaceholder = "***REDACTED***"

// Redactor masks provider API keys and other configured secrets.
// It is safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor that knows the vendor key formats.
func NewRedactor() *Redactor {
	return &Redactor{patterns: KeyPatterns()}
}

// AddLiteral registers a secret loaded at runtime, such as a configured
// API key or the admin token. Values shorter than 8 characters are ignored
// so common words are never masked.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 8 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact masks every known secret in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// KeyPatterns matches the API key formats of the supported vendors and
// bearer credentials echoed in error bodies.
func KeyPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9_\-]{20,}`),
		regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_\-]{20,}`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]{16,}`),
	}
}
