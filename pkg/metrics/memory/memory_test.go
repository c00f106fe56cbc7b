package memory

import (
	"testing"
	"time"

	"campuspay/pkg/metrics"
)

func TestMemoryCollector_BackendCounters(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordRead("redis", true, time.Millisecond)
	mc.RecordRead("redis", false, 2*time.Millisecond)
	mc.RecordWrite("redis", true, time.Millisecond)
	mc.RecordRemove("redis", false, time.Millisecond)
	mc.RecordError("redis", "read", "timeout")

	snap := mc.Snapshot()
	bm, ok := snap.Backends["redis"]
	if !ok {
		t.Fatal("Expected metrics for backend redis")
	}
	if bm.Reads != 2 {
		t.Errorf("Expected 2 reads, got %d", bm.Reads)
	}
	if bm.Writes != 1 {
		t.Errorf("Expected 1 write, got %d", bm.Writes)
	}
	if bm.Errors != 2 {
		t.Errorf("Expected 2 errors, got %d", bm.Errors)
	}
	if bm.ErrorsByType["timeout"] != 1 {
		t.Errorf("Expected 1 timeout error, got %d", bm.ErrorsByType["timeout"])
	}
	if len(bm.ReadLatencies) != 2 {
		t.Errorf("Expected 2 read latencies, got %d", len(bm.ReadLatencies))
	}
}

func TestMemoryCollector_CircuitOpensCountedOnTransition(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordCircuitState("redis", metrics.CircuitOpen)
	mc.RecordCircuitState("redis", metrics.CircuitOpen)
	mc.RecordCircuitState("redis", metrics.CircuitHalfOpen)
	mc.RecordCircuitState("redis", metrics.CircuitOpen)

	bm := mc.Snapshot().Backends["redis"]
	if bm.CircuitOpens != 2 {
		t.Errorf("Expected 2 circuit opens, got %d", bm.CircuitOpens)
	}
	if bm.CircuitState != metrics.CircuitOpen {
		t.Errorf("Expected state open, got %v", bm.CircuitState)
	}
}

func TestMemoryCollector_SnapshotIsACopy(t *testing.T) {
	mc := NewMemoryCollector()
	mc.RecordSettlement(metrics.OutcomeCompleted, time.Millisecond)

	snap := mc.Snapshot()
	snap.Settlements[metrics.OutcomeCompleted] = 99

	if got := mc.Snapshot().Settlements[metrics.OutcomeCompleted]; got != 1 {
		t.Errorf("Expected collector to be unaffected by snapshot mutation, got %d", got)
	}
}

func TestMemoryCollector_Reset(t *testing.T) {
	mc := NewMemoryCollector()
	mc.RecordFallback("transactions", "write")
	mc.RecordModeDegraded()
	mc.RecordScan("detected")

	mc.Reset()

	snap := mc.Snapshot()
	if len(snap.Fallbacks) != 0 || snap.Degradations != 0 || len(snap.Scans) != 0 {
		t.Errorf("Expected empty snapshot after reset, got %+v", snap)
	}
}
