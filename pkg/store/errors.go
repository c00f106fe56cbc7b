package store

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by store backends.
var (
	// ErrNotFound is returned when a single-record lookup matches nothing
	ErrNotFound = errors.New("store: record not found")

	// ErrInvalidKey is returned when a namespaced key cannot be built
	ErrInvalidKey = errors.New("store: invalid key")

	// ErrInvalidRecord is returned for records missing an account or carrying malformed data
	ErrInvalidRecord = errors.New("store: invalid record")

	// ErrInvalidFilter is returned for filters without an account
	ErrInvalidFilter = errors.New("store: invalid filter")

	// ErrUnknownCollection is returned for collections the store does not know
	ErrUnknownCollection = errors.New("store: unknown collection")

	// ErrUnavailable is returned when a backend cannot be reached
	ErrUnavailable = errors.New("store: backend unavailable")

	// ErrTimeout is returned when a backend operation exceeds its deadline
	ErrTimeout = errors.New("store: operation timeout")

	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	ErrCircuitOpen = errors.New("store: circuit breaker open")
)

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err means the backend could not serve the call.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCircuitOpen)
}

// ClassifyError returns a metric label for err.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_breaker_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrInvalidFilter):
		return "invalid_key"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid_record"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection", "connect", "dial", "refused"):
		return "connection"
	case containsAny(msg, "marshal", "unmarshal", "encode", "decode", "json"):
		return "serialization"
	case containsAny(msg, "redis", "postgres", "pq:"):
		return "backend"
	default:
		return "other"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// WrapError annotates err with the backend and operation that produced it.
func WrapError(err error, backend string, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("store %s %s: %w", backend, operation, err)
}
