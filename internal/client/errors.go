package client

import (
	"errors"
	"fmt"

	"github.com/vetsin/code-jam-2025/internal/storage"
)

var (
	ErrLocked          = errors.New("client: vault is locked")
	ErrRateLimited     = errors.New("client: rate limit exceeded")
	ErrPayloadTooLarge = errors.New("client: payload too large")
)

// APIError is a non-2xx response from vaultd. errors.Is matches it against
// the storage sentinels the server mapped to that status.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("vaultd error %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request_id: " + e.RequestID + ")"
	}
	return msg
}

func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 400:
		return target == storage.ErrInvalidID
	case 401:
		return target == storage.ErrInvalidSignature
	case 404:
		return target == storage.ErrNotFound
	case 409:
		return target == storage.ErrAlreadyExists
	case 413:
		return target == ErrPayloadTooLarge
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError is a transport failure after all retries.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error after %d attempt(s): %v", e.Attempt, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
