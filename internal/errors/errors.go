package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Application-specific errors
var (
	// ErrNotConfigured is returned when the payment provider credential is
	// absent; no network call may be attempted in that state.
	ErrNotConfigured = errors.New("payment provider not configured")

	ErrNotFound = errors.New("resource not found")
)

// ValidationError represents a bad or missing input field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ProviderKind classifies a payment provider failure
type ProviderKind string

const (
	KindCardDeclined   ProviderKind = "card_declined"
	KindRateLimited    ProviderKind = "rate_limited"
	KindInvalidRequest ProviderKind = "invalid_request"
	KindAuthFailed     ProviderKind = "auth_failed"
	KindNetwork        ProviderKind = "network"
	KindOther          ProviderKind = "other"
)

// ProviderError is the typed outcome of a failed payment provider call.
// Raw provider errors never cross the billing package boundary.
type ProviderError struct {
	Kind    ProviderKind
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Provider wraps err as a ProviderError of the given kind.
func Provider(kind ProviderKind, message string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Message: message, Err: err}
}

// HTTPStatus maps any error to the status code exposed at the HTTP boundary.
func HTTPStatus(err error) int {
	var ve ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNotConfigured) {
		return http.StatusInternalServerError
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindCardDeclined, KindInvalidRequest, KindOther:
			return http.StatusBadRequest
		case KindRateLimited:
			return http.StatusTooManyRequests
		case KindAuthFailed:
			return http.StatusUnauthorized
		case KindNetwork:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

// TypeTag maps any error to the machine-readable tag carried in the JSON
// error envelope.
func TypeTag(err error) string {
	var ve ValidationError
	if errors.As(err, &ve) {
		return "validation_error"
	}
	if errors.Is(err, ErrNotConfigured) {
		return "configuration_error"
	}
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindCardDeclined:
			return "card_error"
		case KindRateLimited:
			return "rate_limit_error"
		case KindInvalidRequest:
			return "invalid_request_error"
		case KindAuthFailed:
			return "authentication_error"
		case KindNetwork:
			return "api_connection_error"
		default:
			return "stripe_error"
		}
	}
	return "internal_error"
}

// Message returns the user-facing message for an error. Internal failures
// are reduced to a generic message so no details leak to the caller.
func Message(err error) string {
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	if errors.Is(err, ErrNotConfigured) {
		return "Server not configured. Set STRIPE_SECRET_KEY environment variable."
	}
	if errors.Is(err, ErrNotFound) {
		return "Resource not found."
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "An unexpected error occurred."
}
