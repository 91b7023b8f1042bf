package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/meditreat/meditreat/internal/provider"
)

// mapHTTPError turns a non-2xx response into a provider sentinel so the
// chain can decide whether to fail over. 2xx yields nil.
func mapHTTPError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", provider.ErrAuth, msg)
	case status == http.StatusBadRequest && isContextLength(apiErr.Error.Code, msg):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrProviderDown, status, msg)
	default:
		return fmt.Errorf("openai: HTTP %d: %s", status, msg)
	}
}

func isContextLength(code, msg string) bool {
	return code == "context_length_exceeded" || strings.Contains(strings.ToLower(msg), "context length")
}

// mapConnectionError classifies transport failures. Context errors pass
// through so callers see cancellation as such.
func mapConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}
