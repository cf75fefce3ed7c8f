package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	// Invalid input is rejected immediately and never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider, store or document type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Service Errors.

	// ErrTransient indicates an external service is temporarily unavailable.
	// Operations failing with ErrTransient may be retried with backoff.
	ErrTransient = errors.New("transient service error")

	// ErrUnrecoverable indicates retries against an external service were exhausted.
	ErrUnrecoverable = errors.New("unrecoverable service error")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// Store Errors.

	// ErrStoreCorruption indicates the persisted vector index is unreadable.
	// It is fatal at startup: the index is never used partially.
	ErrStoreCorruption = errors.New("vector store corrupted")

	// ErrDimensionMismatch indicates a vector does not match the configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Conversation Errors.

	// ErrThreadBusy indicates another request for the same thread is in flight.
	ErrThreadBusy = errors.New("thread busy")
)

// IsRetryable reports whether err may succeed if the caller tries again.
// Transient service failures, rate limiting and busy threads are retryable;
// everything else, including exhausted retries, is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnrecoverable) {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrThreadBusy)
}
