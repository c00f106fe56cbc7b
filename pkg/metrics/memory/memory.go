package memory

import (
	"sync"
	"time"

	"campuspay/pkg/metrics"
)

// MemoryCollector implements MetricsCollector in memory. It backs tests and
// the /metrics/json endpoint.
type MemoryCollector struct {
	mu sync.RWMutex

	backends map[string]*BackendMetrics
	sinks    map[string]*SinkMetrics

	fallbacks             map[string]int64
	degradations          int64
	scans                 map[string]int64
	settlements           map[string]int64
	coalescedNotification map[string]int64
}

// BackendMetrics holds metrics for one store backend.
type BackendMetrics struct {
	Reads   int64
	Writes  int64
	Removes int64
	Errors  int64

	// ErrorsByType is keyed by store.ClassifyError labels
	ErrorsByType map[string]int64

	CircuitState metrics.CircuitState
	CircuitOpens int64

	ReadLatencies  []time.Duration `json:"-"`
	WriteLatencies []time.Duration `json:"-"`
}

// SinkMetrics holds metrics for one mirror writer sink.
type SinkMetrics struct {
	QueueDepth   int
	Dropped      int64
	Writes       int64
	WriteErrors  int64
	WriteLatency []time.Duration `json:"-"`
}

// NewMemoryCollector creates an empty collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.reset()
	return mc
}

func (mc *MemoryCollector) reset() {
	mc.backends = make(map[string]*BackendMetrics)
	mc.sinks = make(map[string]*SinkMetrics)
	mc.fallbacks = make(map[string]int64)
	mc.degradations = 0
	mc.scans = make(map[string]int64)
	mc.settlements = make(map[string]int64)
	mc.coalescedNotification = make(map[string]int64)
}

// backend must be called with mu held for writing.
func (mc *MemoryCollector) backend(name string) *BackendMetrics {
	bm, ok := mc.backends[name]
	if !ok {
		bm = &BackendMetrics{ErrorsByType: make(map[string]int64)}
		mc.backends[name] = bm
	}
	return bm
}

// sink must be called with mu held for writing.
func (mc *MemoryCollector) sink(name string) *SinkMetrics {
	sm, ok := mc.sinks[name]
	if !ok {
		sm = &SinkMetrics{}
		mc.sinks[name] = sm
	}
	return sm
}

// RecordRead records a backend read.
func (mc *MemoryCollector) RecordRead(backend string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	bm := mc.backend(backend)
	bm.Reads++
	if !success {
		bm.Errors++
	}
	bm.ReadLatencies = append(bm.ReadLatencies, duration)
}

// RecordWrite records a backend write.
func (mc *MemoryCollector) RecordWrite(backend string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	bm := mc.backend(backend)
	bm.Writes++
	if !success {
		bm.Errors++
	}
	bm.WriteLatencies = append(bm.WriteLatencies, duration)
}

// RecordRemove records a backend remove.
func (mc *MemoryCollector) RecordRemove(backend string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	bm := mc.backend(backend)
	bm.Removes++
	if !success {
		bm.Errors++
	}
}

// RecordError records a classified error.
func (mc *MemoryCollector) RecordError(backend, operation, errorType string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.backend(backend).ErrorsByType[errorType]++
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(backend string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	bm := mc.backend(backend)
	if bm.CircuitState != metrics.CircuitOpen && state == metrics.CircuitOpen {
		bm.CircuitOpens++
	}
	bm.CircuitState = state
}

// RecordFallback records a local retry after a remote failure.
func (mc *MemoryCollector) RecordFallback(collection, operation string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.fallbacks[collection+"/"+operation]++
}

// RecordModeDegraded records a session latching into local mode.
func (mc *MemoryCollector) RecordModeDegraded() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.degradations++
}

// RecordQueueDepth records the mirror queue depth.
func (mc *MemoryCollector) RecordQueueDepth(sink string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sink(sink).QueueDepth = depth
}

// RecordMirrorDropped records a dropped mirror write.
func (mc *MemoryCollector) RecordMirrorDropped(sink string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sink(sink).Dropped++
}

// RecordMirrorWrite records a completed mirror write.
func (mc *MemoryCollector) RecordMirrorWrite(sink string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	sm := mc.sink(sink)
	sm.Writes++
	if !success {
		sm.WriteErrors++
	}
	sm.WriteLatency = append(sm.WriteLatency, duration)
}

// RecordScan records a scan outcome.
func (mc *MemoryCollector) RecordScan(outcome string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.scans[outcome]++
}

// RecordSettlement records a confirmation outcome.
func (mc *MemoryCollector) RecordSettlement(outcome string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.settlements[outcome]++
}

// RecordNotificationCoalesced counts events folded into a pending one.
func (mc *MemoryCollector) RecordNotificationCoalesced(event string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.coalescedNotification[event]++
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Backends             map[string]BackendMetrics
	Sinks                  map[string]SinkMetrics
	Fallbacks              map[string]int64
	Degradations           int64
	Scans                  map[string]int64
	Settlements            map[string]int64
	CoalescedNotifications map[string]int64
}

// Snapshot returns a deep copy of the current metrics.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := Snapshot{
		Backends:               make(map[string]BackendMetrics, len(mc.backends)),
		Sinks:                  make(map[string]SinkMetrics, len(mc.sinks)),
		Fallbacks:              copyCounts(mc.fallbacks),
		Degradations:           mc.degradations,
		Scans:                  copyCounts(mc.scans),
		Settlements:            copyCounts(mc.settlements),
		CoalescedNotifications: copyCounts(mc.coalescedNotification),
	}
	for name, bm := range mc.backends {
		c := *bm
		c.ErrorsByType = copyCounts(bm.ErrorsByType)
		c.ReadLatencies = append([]time.Duration(nil), bm.ReadLatencies...)
		c.WriteLatencies = append([]time.Duration(nil), bm.WriteLatencies...)
		snap.Backends[name] = c
	}
	for name, sm := range mc.sinks {
		c := *sm
		c.WriteLatency = append([]time.Duration(nil), sm.WriteLatency...)
		snap.Sinks[name] = c
	}
	return snap
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.reset()
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
