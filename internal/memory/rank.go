package memory

import (
	"slices"
	"strings"

	"github.com/meditreat/meditreat/pkg/message"
)

// relevance scores a body against a lowercased query: 1 when the body
// contains it, 0 otherwise.
func relevance(body, lowerQuery string) int {
	if strings.Contains(strings.ToLower(body), lowerQuery) {
		return 1
	}
	return 0
}

// rank orders msgs by relevance to query, descending. The sort is stable
// so equally relevant messages keep their chronological order. A blank
// query leaves msgs untouched.
func rank(msgs []message.Message, query string) []message.Message {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(msgs) < 2 {
		return msgs
	}
	slices.SortStableFunc(msgs, func(a, b message.Message) int {
		return relevance(b.Body, q) - relevance(a.Body, q)
	})
	return msgs
}
