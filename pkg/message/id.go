package message

import (
	"strings"

	"github.com/google/uuid"
)

// CanonicalID coerces raw into the canonical lowercase hyphenated UUID form.
// Inputs that do not parse as a UUID are replaced by a freshly generated
// random UUID, so malformed identifiers do not round-trip.
func CanonicalID(raw string) string {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// IsCanonicalID reports whether raw is already in canonical form.
func IsCanonicalID(raw string) bool {
	id, err := uuid.Parse(raw)
	return err == nil && id.String() == raw
}
