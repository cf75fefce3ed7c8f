// Package apierr classifies HTTP API failures into domain errors.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// maxBodyInError bounds how much of a response body ends up in an error.
const maxBodyInError = 512

// FromStatus converts a non-2xx response into a classified error.
// 429 is rate limiting; 408 and 5xx are transient; other 4xx are invalid input.
func FromStatus(service string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxBodyInError {
		msg = msg[:maxBodyInError] + "..."
	}

	var kind error
	switch {
	case status == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		kind = domain.ErrTransient
	default:
		kind = domain.ErrInvalidInput
	}
	return fmt.Errorf("%s error (status %d): %s: %w", service, status, msg, kind)
}

// FromTransport wraps a request failure. Cancellation is returned as is so
// callers can tell an abort from an outage.
func FromTransport(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: send request: %w", service, errors.Join(domain.ErrTransient, err))
}

// CheckDimensions validates an embedding vector size.
func CheckDimensions(service string, got, want int) error {
	if want > 0 && got != want {
		return fmt.Errorf("%s: got %d dimensions, want %d: %w", service, got, want, domain.ErrDimensionMismatch)
	}
	return nil
}

// ValidateText rejects empty embedding input.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	return nil
}
