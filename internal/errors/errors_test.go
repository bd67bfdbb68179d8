package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := ValidationError{Field: "email", Message: "is required"}
	if err.Error() != "validation error on field 'email': is required" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	err = ValidationError{Message: "invalid JSON body"}
	if err.Error() != "invalid JSON body" {
		t.Errorf("unexpected message without field: %s", err.Error())
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Provider(KindNetwork, "Network error. Please try again.", inner)
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}

func TestHTTPStatusAndTypeTag(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", ValidationError{Field: "email", Message: "is required"}, http.StatusBadRequest, "validation_error"},
		{"wrapped validation", fmt.Errorf("handling request: %w", ValidationError{Message: "bad"}), http.StatusBadRequest, "validation_error"},
		{"not configured", ErrNotConfigured, http.StatusInternalServerError, "configuration_error"},
		{"not found", ErrNotFound, http.StatusNotFound, "not_found"},
		{"card declined", Provider(KindCardDeclined, "Your card was declined.", nil), http.StatusBadRequest, "card_error"},
		{"rate limited", Provider(KindRateLimited, "Too many requests. Please try again later.", nil), http.StatusTooManyRequests, "rate_limit_error"},
		{"invalid request", Provider(KindInvalidRequest, "No such price", nil), http.StatusBadRequest, "invalid_request_error"},
		{"auth failed", Provider(KindAuthFailed, "Authentication with payment provider failed.", nil), http.StatusUnauthorized, "authentication_error"},
		{"network", Provider(KindNetwork, "Network error. Please try again.", nil), http.StatusBadGateway, "api_connection_error"},
		{"other provider", Provider(KindOther, "something odd", nil), http.StatusBadRequest, "stripe_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.wantStatus)
			}
			if got := TypeTag(tt.err); got != tt.wantType {
				t.Errorf("TypeTag = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	if got := Message(errors.New("secret detail")); got != "An unexpected error occurred." {
		t.Errorf("internal errors must not leak details, got %q", got)
	}
	if got := Message(Provider(KindCardDeclined, "Your card was declined.", nil)); got != "Your card was declined." {
		t.Errorf("unexpected provider message: %q", got)
	}
	if got := Message(ErrNotConfigured); got != "Server not configured. Set STRIPE_SECRET_KEY environment variable." {
		t.Errorf("unexpected configuration message: %q", got)
	}
}
