package resilience

import (
	"context"
	"errors"
	"time"

	"campuspay/pkg/logging"
	"campuspay/pkg/metrics"
	"campuspay/pkg/store"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilientBackend wraps a store.Backend with a circuit breaker and a
// per-operation timeout. Breaker rejections and deadline overruns surface as
// store.ErrCircuitOpen and store.ErrTimeout so callers can fall back.
type ResilientBackend struct {
	backend store.Backend
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *logging.Logger
}

// NewResilientBackend wraps backend using a no-op metrics collector.
func NewResilientBackend(backend store.Backend, config ResilientConfig) *ResilientBackend {
	return NewResilientBackendWithMetrics(backend, config, metrics.NoOpCollector{})
}

// NewResilientBackendWithMetrics wraps backend and reports to collector.
func NewResilientBackendWithMetrics(backend store.Backend, config ResilientConfig, collector metrics.MetricsCollector) *ResilientBackend {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger := logging.Global().Named("resilience").Named(backend.Name())

	rb := &ResilientBackend{
		backend: backend,
		timeout: config.Timeout,
		metrics: collector,
		logger:  logger,
	}

	logger.Info("resilient backend initialized",
		zap.String("backend", backend.Name()),
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
	)

	settings := gobreaker.Settings{
		Name:        backend.Name(),
		MaxRequests: config.CircuitBreakerConfig.MaxRequests,
		Interval:    config.CircuitBreakerConfig.Interval,
		Timeout:     config.CircuitBreakerConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreakerConfig.ReadyToTrip != nil {
				return config.CircuitBreakerConfig.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		// Caller mistakes say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, store.ErrNotFound) ||
				errors.Is(err, store.ErrInvalidRecord) ||
				errors.Is(err, store.ErrInvalidFilter) ||
				errors.Is(err, store.ErrInvalidKey) ||
				errors.Is(err, store.ErrUnknownCollection) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			rb.metrics.RecordCircuitState(name, circuitState(to))
		},
	}
	rb.cb = gobreaker.NewCircuitBreaker(settings)

	return rb
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// Name returns the name of the wrapped backend.
func (rb *ResilientBackend) Name() string {
	return rb.backend.Name()
}

// State returns the current breaker state.
func (rb *ResilientBackend) State() metrics.CircuitState {
	return circuitState(rb.cb.State())
}

// Read reads through the breaker.
func (rb *ResilientBackend) Read(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error) {
	var records []store.Record
	err := rb.execute(ctx, "read", collection, func(ctx context.Context) error {
		var err error
		records, err = rb.backend.Read(ctx, collection, filter)
		return err
	})
	return records, err
}

// Write writes through the breaker.
func (rb *ResilientBackend) Write(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
	var stored store.Record
	err := rb.execute(ctx, "write", collection, func(ctx context.Context) error {
		var err error
		stored, err = rb.backend.Write(ctx, collection, record)
		return err
	})
	return stored, err
}

// Remove removes through the breaker.
func (rb *ResilientBackend) Remove(ctx context.Context, collection store.Collection, filter store.Filter) error {
	return rb.execute(ctx, "remove", collection, func(ctx context.Context) error {
		return rb.backend.Remove(ctx, collection, filter)
	})
}

// Close closes the wrapped backend.
func (rb *ResilientBackend) Close() error {
	return rb.backend.Close()
}

func (rb *ResilientBackend) execute(ctx context.Context, operation string, collection store.Collection, fn func(ctx context.Context) error) error {
	start := time.Now()
	name := rb.backend.Name()

	if rb.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rb.timeout)
		defer cancel()
	}

	_, err := rb.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	duration := time.Since(start)
	rb.record(name, operation, err == nil, duration)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rb.logger.Warn("circuit breaker open - request rejected",
			zap.String("operation", operation),
			zap.String("collection", string(collection)),
		)
		err = store.WrapError(store.ErrCircuitOpen, name, operation)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rb.logger.Warn("operation timeout",
			zap.String("operation", operation),
			zap.String("collection", string(collection)),
			zap.Duration("timeout", rb.timeout),
			zap.Duration("elapsed", duration),
		)
		err = store.WrapError(store.ErrTimeout, name, operation)
	default:
		rb.logger.Error("operation failed",
			zap.String("operation", operation),
			zap.String("collection", string(collection)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}
	rb.metrics.RecordError(name, operation, store.ClassifyError(err))
	return err
}

func (rb *ResilientBackend) record(name, operation string, success bool, duration time.Duration) {
	switch operation {
	case "read":
		rb.metrics.RecordRead(name, success, duration)
	case "write":
		rb.metrics.RecordWrite(name, success, duration)
	case "remove":
		rb.metrics.RecordRemove(name, success, duration)
	}
}
