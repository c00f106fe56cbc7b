package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"campuspay/pkg/metrics"
	memorycollector "campuspay/pkg/metrics/memory"
	"campuspay/pkg/store"
	"campuspay/pkg/store/memory"
	"campuspay/pkg/store/mock"
)

func TestResilientBackend_PassesThrough(t *testing.T) {
	rb := NewResilientBackend(memory.New(memory.Config{Name: "remote"}), DefaultResilientConfig())
	defer rb.Close()

	ctx := context.Background()
	rec, err := rb.Write(ctx, store.Profiles, store.Record{ID: "u1", AccountID: "u1", Data: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := rb.Read(ctx, store.Profiles, store.Filter{AccountID: "u1", ID: rec.ID})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 record, got %d", len(got))
	}
	if rb.Name() != "remote" {
		t.Errorf("Expected name remote, got %q", rb.Name())
	}
}

func TestResilientBackend_OpensCircuit(t *testing.T) {
	failing := mock.NewFailingBackend("remote")
	collector := memorycollector.NewMemoryCollector()
	rb := NewResilientBackendWithMetrics(failing, DefaultResilientConfig(), collector)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := rb.Read(ctx, store.Profiles, store.ByAccount("u1"))
		if !errors.Is(err, mock.ErrInjected) {
			t.Fatalf("Call %d: expected injected error, got %v", i, err)
		}
	}

	_, err := rb.Read(ctx, store.Profiles, store.ByAccount("u1"))
	if !errors.Is(err, store.ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if failing.ReadCalls() != 5 {
		t.Errorf("Expected open circuit to skip the backend, got %d calls", failing.ReadCalls())
	}
	if rb.State() != metrics.CircuitOpen {
		t.Errorf("Expected state open, got %v", rb.State())
	}

	bm := collector.Snapshot().Backends["remote"]
	if bm.CircuitOpens != 1 {
		t.Errorf("Expected 1 circuit open, got %d", bm.CircuitOpens)
	}
	if bm.ErrorsByType["circuit_breaker_open"] != 1 {
		t.Errorf("Expected 1 circuit_breaker_open error, got %d", bm.ErrorsByType["circuit_breaker_open"])
	}
}

func TestResilientBackend_CallerErrorsDoNotTripCircuit(t *testing.T) {
	rb := NewResilientBackend(memory.New(memory.Config{}), DefaultResilientConfig())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := rb.Read(ctx, store.Profiles, store.Filter{})
		if !errors.Is(err, store.ErrInvalidFilter) {
			t.Fatalf("Expected ErrInvalidFilter, got %v", err)
		}
	}
	if rb.State() != metrics.CircuitClosed {
		t.Errorf("Expected circuit to stay closed, got %v", rb.State())
	}
}

func TestResilientBackend_Timeout(t *testing.T) {
	slow := mock.NewMockBackend("slow")
	slow.WriteFunc = func(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
		select {
		case <-time.After(time.Second):
			return record, nil
		case <-ctx.Done():
			return store.Record{}, ctx.Err()
		}
	}

	rb := NewResilientBackend(slow, DefaultResilientConfig().WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := rb.Write(context.Background(), store.Transactions, store.Record{AccountID: "u1"})
	if !errors.Is(err, store.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if !store.IsUnavailable(err) {
		t.Error("Expected timeout to count as unavailable")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected timeout to cut the call short, took %v", elapsed)
	}
}
