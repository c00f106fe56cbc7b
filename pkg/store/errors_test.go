package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"circuit open", ErrCircuitOpen, "circuit_breaker_open"},
		{"wrapped timeout", WrapError(ErrTimeout, "redis", "read"), "timeout"},
		{"not found", ErrNotFound, "not_found"},
		{"unavailable", ErrUnavailable, "unavailable"},
		{"invalid filter", ErrInvalidFilter, "invalid_key"},
		{"invalid record", ErrInvalidRecord, "invalid_record"},
		{"dial", errors.New("dial tcp 127.0.0.1:6379: connection refused"), "connection"},
		{"json", errors.New("json: cannot unmarshal"), "serialization"},
		{"pq", errors.New("pq: relation does not exist"), "backend"},
		{"other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsUnavailable(t *testing.T) {
	for _, err := range []error{ErrUnavailable, ErrTimeout, ErrCircuitOpen, fmt.Errorf("x: %w", ErrTimeout)} {
		if !IsUnavailable(err) {
			t.Errorf("Expected %v to be classified unavailable", err)
		}
	}
	if IsUnavailable(ErrNotFound) {
		t.Error("Expected ErrNotFound not to be classified unavailable")
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "redis", "read") != nil {
		t.Error("Expected nil for nil error")
	}

	err := WrapError(ErrNotFound, "postgres", "read")
	if !IsNotFound(err) {
		t.Error("Expected wrapped error to match ErrNotFound")
	}
	if err.Error() != "store postgres read: store: record not found" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}
