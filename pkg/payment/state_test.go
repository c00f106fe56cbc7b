package payment

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestState_JSON(t *testing.T) {
	data, err := json.Marshal(StateAwaitingConfirmation)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"awaiting_confirmation"` {
		t.Errorf("Expected \"awaiting_confirmation\", got %s", data)
	}
	if State(42).String() != "state(42)" {
		t.Errorf("Expected state(42), got %s", State(42))
	}
}

func TestState_Cancellable(t *testing.T) {
	cases := map[State]bool{
		StateIdle:                 false,
		StateScanning:             true,
		StateDetected:             true,
		StateAwaitingConfirmation: true,
		StateSettling:             false,
		StateComplete:             false,
		StateFailed:               false,
	}
	for s, want := range cases {
		if got := s.cancellable(); got != want {
			t.Errorf("%s: expected cancellable %v, got %v", s, want, got)
		}
	}
}

func TestReconciliationError(t *testing.T) {
	cause := errors.New("ledger down")
	err := &ReconciliationError{
		AccountID:   "acct-1",
		Amount:      decimal.RequireFromString("10.99"),
		Step:        "ledger append",
		Compensated: true,
		Err:         cause,
	}
	if !errors.Is(err, ErrReconciliation) {
		t.Error("Expected errors.Is(err, ErrReconciliation)")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected the cause to be unwrapped")
	}
	if err.Error() == "" {
		t.Error("Expected a message")
	}
}
