package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/meditreat/meditreat/internal/provider"
)

// mapError classifies SDK errors into provider sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}

	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", provider.ErrRateLimit, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", provider.ErrAuth, err)
	case code == http.StatusBadRequest && mentionsContextLimit(apiErr.RawJSON()):
		return fmt.Errorf("%w: %w", provider.ErrContextLength, err)
	case code >= 500:
		// 529 is Anthropic's "overloaded".
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	default:
		return fmt.Errorf("anthropic: HTTP %d: %w", code, err)
	}
}

func mentionsContextLimit(raw string) bool {
	raw = strings.ToLower(raw)
	return strings.Contains(raw, "context length") ||
		strings.Contains(raw, "too many tokens") ||
		strings.Contains(raw, "prompt is too long")
}
