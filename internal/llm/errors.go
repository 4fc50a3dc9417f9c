package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Sentinel errors exposed by the llm package. Callers match on these with
// errors.Is to classify provider failures without depending on provider
// error types.
var (
	// ErrQuotaExceeded indicates the provider rejected the request due to
	// rate limiting or exhausted quota.
	ErrQuotaExceeded = errors.New("llm: quota exceeded")

	// ErrAuth indicates the API key was missing, invalid, or not authorized.
	ErrAuth = errors.New("llm: authentication failed")

	// ErrTimeout indicates the request did not complete within the deadline.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrEmptyResponse indicates the provider returned a response with no
	// usable text content.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// normalizeError maps provider/transport failures onto the package sentinels
// while preserving the original error in the chain. Unclassified errors are
// returned wrapped with a generic prefix.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case 401, 403:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		case 504:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}

	// The SDK sometimes surfaces plain-text errors; fall back to message
	// heuristics the same way we classify rotating-key failures elsewhere.
	msg := err.Error()
	low := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(low, "quota"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(low, "api key"),
		strings.Contains(low, "unauthenticated"),
		strings.Contains(low, "permission denied"):
		return fmt.Errorf("%w: %v", ErrAuth, err)
	case strings.Contains(low, "deadline exceeded"),
		strings.Contains(low, "timeout"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("llm: %w", err)
}
