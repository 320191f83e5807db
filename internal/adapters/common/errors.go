package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the dispatch error taxonomy. Every error surfaced by the
// dispatcher, adapters and API client matches exactly one of them.
var (
	// ErrValidation marks an empty message or a missing required field.
	ErrValidation = errors.New("validation error")
	// ErrState marks an invalid dispatcher transition.
	ErrState = errors.New("state error")
	// ErrNetwork marks a transport failure; the caller may retry by hand.
	ErrNetwork = errors.New("network error")
	// ErrServer marks a non-2xx response.
	ErrServer = errors.New("server error")
)

// WrapValidation annotates an error as a validation failure.
func WrapValidation(err error) error {
	if err == nil {
		return ErrValidation
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// WrapState annotates an error as an invalid transition.
func WrapState(err error) error {
	if err == nil {
		return ErrState
	}
	return fmt.Errorf("%w: %v", ErrState, err)
}

// WrapNetwork annotates a transport error. The original error stays reachable
// through errors.Is so context cancellation can still be detected.
func WrapNetwork(err error) error {
	if err == nil {
		return ErrNetwork
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// ServerError is a non-2xx response from the billing API.
type ServerError struct {
	StatusCode int
	// Message is the server supplied "message" field, if any.
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server error: status %d", e.StatusCode)
}

// Is makes errors.Is(err, ErrServer) hold for every *ServerError.
func (e *ServerError) Is(target error) bool { return target == ErrServer }

// Unauthorized reports whether the response should invalidate the session.
func (e *ServerError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsUnauthorized reports whether err carries a 401 or 403 ServerError.
func IsUnauthorized(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Unauthorized()
}

// Kind returns the taxonomy name of err, used for DLQ failure types and
// metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrServer):
		return "server"
	default:
		return "unknown"
	}
}
