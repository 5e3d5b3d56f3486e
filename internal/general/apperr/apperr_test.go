package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
		msg    string
	}{
		{"validation", Validation("latitude out of range"), CodeValidation, http.StatusBadRequest, "latitude out of range"},
		{"forbidden", Forbidden("not a participant"), CodeForbidden, http.StatusForbidden, "not a participant"},
		{"not found", NotFound("message not found"), CodeNotFound, http.StatusNotFound, "message not found"},
		{"wrapped", fmt.Errorf("send: %w", Forbidden("nope")), CodeForbidden, http.StatusForbidden, "send: nope"},
		{"internal", errors.New("connection refused"), CodeInternal, http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.code {
				t.Errorf("Code() = %q, want %q", got, tt.code)
			}
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
			if got := Message(tt.err); got != tt.msg {
				t.Errorf("Message() = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestSentinelIdentity(t *testing.T) {
	errEmpty := Validation("content is required")
	wrapped := fmt.Errorf("chat: %w", errEmpty)

	if !errors.Is(wrapped, errEmpty) {
		t.Error("wrapped error should match its sentinel")
	}
	if !errors.Is(wrapped, ErrValidation) {
		t.Error("wrapped error should match its kind")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("validation error must not match ErrNotFound")
	}
	if Code(nil) != "" {
		t.Errorf("Code(nil) = %q, want empty", Code(nil))
	}
}
