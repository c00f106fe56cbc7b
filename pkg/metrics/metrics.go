package metrics

import (
	"time"
)

// MetricsCollector receives operational measurements from the store,
// gateway, mirror writer, and payment flow. Implementations export them to a
// backend (Prometheus) or keep them in memory for tests.
type MetricsCollector interface {
	// Backend operations
	RecordRead(backend string, success bool, duration time.Duration)
	RecordWrite(backend string, success bool, duration time.Duration)
	RecordRemove(backend string, success bool, duration time.Duration)
	RecordError(backend, operation, errorType string)

	// Circuit breaker
	RecordCircuitState(backend string, state CircuitState)

	// Gateway
	RecordFallback(collection, operation string)
	RecordModeDegraded()

	// Local mirror writer
	RecordQueueDepth(sink string, depth int)
	RecordMirrorDropped(sink string)
	RecordMirrorWrite(sink string, success bool, duration time.Duration)

	// Payment flow
	RecordScan(outcome string)
	RecordSettlement(outcome string, duration time.Duration)
	RecordNotificationCoalesced(event string)
}

// Settlement outcome labels.
const (
	OutcomeCompleted         = "completed"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeInvalidCredential = "invalid_credential"
	OutcomeReconciliation    = "reconciliation_error"
	OutcomeFailed            = "failed"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is probing for recovery.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything. It is the default collector.
type NoOpCollector struct{}

// RecordRead does nothing.
func (NoOpCollector) RecordRead(backend string, success bool, duration time.Duration) {}

// RecordWrite does nothing.
func (NoOpCollector) RecordWrite(backend string, success bool, duration time.Duration) {}

// RecordRemove does nothing.
func (NoOpCollector) RecordRemove(backend string, success bool, duration time.Duration) {}

// RecordError does nothing.
func (NoOpCollector) RecordError(backend, operation, errorType string) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(backend string, state CircuitState) {}

// RecordFallback does nothing.
func (NoOpCollector) RecordFallback(collection, operation string) {}

// RecordModeDegraded does nothing.
func (NoOpCollector) RecordModeDegraded() {}

// RecordQueueDepth does nothing.
func (NoOpCollector) RecordQueueDepth(sink string, depth int) {}

// RecordMirrorDropped does nothing.
func (NoOpCollector) RecordMirrorDropped(sink string) {}

// RecordMirrorWrite does nothing.
func (NoOpCollector) RecordMirrorWrite(sink string, success bool, duration time.Duration) {}

// RecordScan does nothing.
func (NoOpCollector) RecordScan(outcome string) {}

// RecordSettlement does nothing.
func (NoOpCollector) RecordSettlement(outcome string, duration time.Duration) {}

// RecordNotificationCoalesced does nothing.
func (NoOpCollector) RecordNotificationCoalesced(event string) {}
