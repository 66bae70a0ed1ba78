package lingorelay

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is() to check.
var (
	ErrNotFound      = errors.New("lingorelay: not found")
	ErrRelayDisabled = errors.New("lingorelay: relay disabled")
	ErrProvider      = errors.New("lingorelay: translation provider error")
	ErrBroadcaster   = errors.New("lingorelay: broadcaster error")
	ErrUnauthorized  = errors.New("lingorelay: unauthorized")
	ErrBadRequest    = errors.New("lingorelay: bad request")
)

// APIError carries the raw error response. It wraps the matching sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lingorelay: API error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the API error code onto a sentinel.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_found":
		return ErrNotFound
	case "relay_disabled":
		return ErrRelayDisabled
	case "provider_error":
		return ErrProvider
	case "broadcaster_error":
		return ErrBroadcaster
	case "bad_request":
		if e.Status == 401 {
			return ErrUnauthorized
		}
		return ErrBadRequest
	default:
		return nil
	}
}
