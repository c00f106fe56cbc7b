package prometheus

import (
	"time"

	"campuspay/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements metrics.MetricsCollector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Backend operations
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Gateway
	fallbacks       *prometheus.CounterVec
	degradations    prometheus.Counter
	coalescedEvents *prometheus.CounterVec

	// Mirror writer
	queueDepth    *prometheus.GaugeVec
	mirrorDropped *prometheus.CounterVec
	mirrorWrites  *prometheus.CounterVec
	mirrorLatency *prometheus.HistogramVec

	// Payment flow
	scans              *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	settlementDuration *prometheus.HistogramVec
}

// NewPrometheusCollector creates a collector whose series share namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	return &PrometheusCollector{
		namespace: namespace,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Store operations per backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Store errors per backend, operation and error type",
			},
			[]string{"backend", "operation", "error_type"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Store operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"backend", "operation"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Circuit breaker opens per backend",
			},
			[]string{"backend"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half-open)",
			},
			[]string{"backend"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_fallbacks_total",
				Help:      "Operations retried against the local cache after a remote failure",
			},
			[]string{"collection", "operation"},
		),
		degradations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_mode_degradations_total",
				Help:      "Sessions latched from remote into local mode",
			},
		),
		coalescedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_coalesced_total",
				Help:      "Notifications folded into one already pending for a subscriber",
			},
			[]string{"event"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mirror_queue_depth",
				Help:      "Pending local mirror writes",
			},
			[]string{"sink"},
		),
		mirrorDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_dropped_total",
				Help:      "Local mirror writes dropped due to backpressure",
			},
			[]string{"sink"},
		),
		mirrorWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_writes_total",
				Help:      "Local mirror writes per status",
			},
			[]string{"sink", "status"},
		),
		mirrorLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mirror_write_duration_seconds",
				Help:      "Local mirror write latency",
				Buckets:   latencyBuckets,
			},
			[]string{"sink"},
		),
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Card scans per outcome",
			},
			[]string{"outcome"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Payment confirmations per outcome",
			},
			[]string{"outcome"},
		),
		settlementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settlement_duration_seconds",
				Help:      "Time spent settling a confirmed payment",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

func (pc *PrometheusCollector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pc.operations,
		pc.errors,
		pc.latency,
		pc.circuitOpens,
		pc.circuitState,
		pc.fallbacks,
		pc.degradations,
		pc.coalescedEvents,
		pc.queueDepth,
		pc.mirrorDropped,
		pc.mirrorWrites,
		pc.mirrorLatency,
		pc.scans,
		pc.settlements,
		pc.settlementDuration,
	}
}

// Register registers all series with registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	for _, collector := range pc.collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// Describe implements prometheus.Collector.
func (pc *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range pc.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (pc *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	for _, c := range pc.collectors() {
		c.Collect(ch)
	}
}

func (pc *PrometheusCollector) recordOp(backend, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.operations.WithLabelValues(backend, operation, status).Inc()
	pc.latency.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordRead records a backend read.
func (pc *PrometheusCollector) RecordRead(backend string, success bool, duration time.Duration) {
	pc.recordOp(backend, "read", success, duration)
}

// RecordWrite records a backend write.
func (pc *PrometheusCollector) RecordWrite(backend string, success bool, duration time.Duration) {
	pc.recordOp(backend, "write", success, duration)
}

// RecordRemove records a backend remove.
func (pc *PrometheusCollector) RecordRemove(backend string, success bool, duration time.Duration) {
	pc.recordOp(backend, "remove", success, duration)
}

// RecordError records a classified backend error.
func (pc *PrometheusCollector) RecordError(backend, operation, errorType string) {
	pc.errors.WithLabelValues(backend, operation, errorType).Inc()
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(backend string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(backend).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(backend).Inc()
	}
}

// RecordFallback records a local retry after a remote failure.
func (pc *PrometheusCollector) RecordFallback(collection, operation string) {
	pc.fallbacks.WithLabelValues(collection, operation).Inc()
}

// RecordModeDegraded records a session latching into local mode.
func (pc *PrometheusCollector) RecordModeDegraded() {
	pc.degradations.Inc()
}

// RecordQueueDepth records the mirror writer queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(sink string, depth int) {
	pc.queueDepth.WithLabelValues(sink).Set(float64(depth))
}

// RecordMirrorDropped records a dropped mirror write.
func (pc *PrometheusCollector) RecordMirrorDropped(sink string) {
	pc.mirrorDropped.WithLabelValues(sink).Inc()
}

// RecordMirrorWrite records a completed mirror write.
func (pc *PrometheusCollector) RecordMirrorWrite(sink string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.mirrorWrites.WithLabelValues(sink, status).Inc()
	pc.mirrorLatency.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordScan records a scan attempt outcome.
func (pc *PrometheusCollector) RecordScan(outcome string) {
	pc.scans.WithLabelValues(outcome).Inc()
}

// RecordSettlement records a confirmation outcome and its duration.
func (pc *PrometheusCollector) RecordSettlement(outcome string, duration time.Duration) {
	pc.settlements.WithLabelValues(outcome).Inc()
	pc.settlementDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordNotificationCoalesced records an event folded into a pending one.
func (pc *PrometheusCollector) RecordNotificationCoalesced(event string) {
	pc.coalescedEvents.WithLabelValues(event).Inc()
}
