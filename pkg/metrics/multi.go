package metrics

import "time"

// MultiCollector fans every record out to several collectors.
type MultiCollector []MetricsCollector

// NewMultiCollector combines collectors, skipping nil ones.
func NewMultiCollector(collectors ...MetricsCollector) MultiCollector {
	out := make(MultiCollector, 0, len(collectors))
	for _, c := range collectors {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (m MultiCollector) RecordRead(backend string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordRead(backend, success, duration)
	}
}

func (m MultiCollector) RecordWrite(backend string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordWrite(backend, success, duration)
	}
}

func (m MultiCollector) RecordRemove(backend string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordRemove(backend, success, duration)
	}
}

func (m MultiCollector) RecordError(backend, operation, errorType string) {
	for _, c := range m {
		c.RecordError(backend, operation, errorType)
	}
}

func (m MultiCollector) RecordCircuitState(backend string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(backend, state)
	}
}

func (m MultiCollector) RecordFallback(collection, operation string) {
	for _, c := range m {
		c.RecordFallback(collection, operation)
	}
}

func (m MultiCollector) RecordModeDegraded() {
	for _, c := range m {
		c.RecordModeDegraded()
	}
}

func (m MultiCollector) RecordQueueDepth(sink string, depth int) {
	for _, c := range m {
		c.RecordQueueDepth(sink, depth)
	}
}

func (m MultiCollector) RecordMirrorDropped(sink string) {
	for _, c := range m {
		c.RecordMirrorDropped(sink)
	}
}

func (m MultiCollector) RecordMirrorWrite(sink string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordMirrorWrite(sink, success, duration)
	}
}

func (m MultiCollector) RecordScan(outcome string) {
	for _, c := range m {
		c.RecordScan(outcome)
	}
}

func (m MultiCollector) RecordSettlement(outcome string, duration time.Duration) {
	for _, c := range m {
		c.RecordSettlement(outcome, duration)
	}
}

func (m MultiCollector) RecordNotificationCoalesced(event string) {
	for _, c := range m {
		c.RecordNotificationCoalesced(event)
	}
}
