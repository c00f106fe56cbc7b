package payment

import (
	"encoding/json"
	"fmt"
)

// State is a payment session state.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateDetected
	StateAwaitingConfirmation
	StateSettling
	StateComplete
	StateFailed
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDetected:
		return "detected"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateSettling:
		return "settling"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON encodes the state as its wire name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// cancellable reports whether Cancel may discard a session in s.
func (s State) cancellable() bool {
	switch s {
	case StateScanning, StateDetected, StateAwaitingConfirmation:
		return true
	case StateIdle, StateSettling, StateComplete, StateFailed:
		return false
	default:
		return false
	}
}

// terminal reports whether s ends a session.
func (s State) terminal() bool {
	return s == StateComplete || s == StateFailed
}
