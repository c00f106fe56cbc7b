package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"campuspay/pkg/logging"
	"campuspay/pkg/metrics"
	"campuspay/pkg/store"

	"go.uber.org/zap"
)

// Sink receives mirrored records. store/memory.LocalStore satisfies it.
type Sink interface {
	Name() string
	Merge(ctx context.Context, collection store.Collection, accountID string, records []store.Record) error
}

// AsyncWriter copies remote read results into the local cache in the
// background, so a later outage can still serve what was last seen. Writes
// for one account are applied in enqueue order when Workers is 1.
type AsyncWriter struct {
	sink       Sink
	queue      chan mirrorOp
	workers    int
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     AsyncWriterConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	sinkName   string

	// Statistics (accessed atomically)
	droppedWrites int64
	totalWrites   int64
	failedWrites  int64

	// pending counts batches queued or being merged
	pending int64

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
	closeOnce     sync.Once
}

type mirrorOp struct {
	collection store.Collection
	accountID  string
	records    []store.Record
}

// AsyncWriterConfig configures the async writer behavior.
type AsyncWriterConfig struct {
	// QueueSize is the bounded queue size (default: 256)
	QueueSize int

	// Workers is the number of concurrent workers (default: 1)
	Workers int

	// MaxWaitTime is the max time to wait if queue is full.
	// 0 means the default of 10ms.
	MaxWaitTime time.Duration

	// ReportInterval is how often queue depth is reported (default: 5s)
	ReportInterval time.Duration
}

// NewAsyncWriter creates a writer mirroring into sink.
// The writer starts processing immediately and must be closed with Close().
func NewAsyncWriter(sink Sink, config AsyncWriterConfig) *AsyncWriter {
	return NewAsyncWriterWithMetrics(sink, config, metrics.NoOpCollector{})
}

// NewAsyncWriterWithMetrics creates a writer reporting to metricsCollector.
func NewAsyncWriterWithMetrics(sink Sink, config AsyncWriterConfig, metricsCollector metrics.MetricsCollector) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = 5 * time.Second
	}
	if metricsCollector == nil {
		metricsCollector = metrics.NoOpCollector{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncWriter{
		sink:          sink,
		queue:         make(chan mirrorOp, config.QueueSize),
		workers:       config.Workers,
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       metricsCollector,
		logger:        logging.Global().Named("mirror").Named(sink.Name()),
		sinkName:      sink.Name(),
		metricsTicker: time.NewTicker(config.ReportInterval),
		metricsStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	go w.reportMetrics()

	return w
}

// Mirror enqueues records for merging into the sink.
// If the queue is full, it waits up to MaxWaitTime before dropping the batch.
// Returns ErrQueueFull if the batch was dropped due to backpressure.
func (w *AsyncWriter) Mirror(ctx context.Context, collection store.Collection, accountID string, records []store.Record) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	op := mirrorOp{
		collection: collection,
		accountID:  accountID,
		records:    append([]store.Record(nil), records...),
	}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	atomic.AddInt64(&w.pending, 1)
	select {
	case w.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.pending, -1)
		atomic.AddInt64(&w.droppedWrites, 1)
		w.metrics.RecordMirrorDropped(w.sinkName)
		return ErrQueueFull
	case <-ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ctx.Err()
	case <-w.ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ErrWriterClosed
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) apply(op mirrorOp) {
	defer atomic.AddInt64(&w.pending, -1)
	start := time.Now()
	err := w.sink.Merge(context.Background(), op.collection, op.accountID, op.records)
	w.metrics.RecordMirrorWrite(w.sinkName, err == nil, time.Since(start))

	if err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
		w.logger.Warn("mirror write failed",
			zap.String("collection", string(op.collection)),
			zap.String("account_id", op.accountID),
			zap.Int("records", len(op.records)),
			zap.Error(err),
		)
	}
}

// Flush waits until every accepted batch has been merged, or until timeout.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if atomic.LoadInt64(&w.pending) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops accepting new batches and waits for workers to drain the queue.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.metricsStop)
		w.metricsTicker.Stop()
		w.cancelFunc()
		w.wg.Wait()
	})
	return nil
}

func (w *AsyncWriter) reportMetrics() {
	for {
		select {
		case <-w.metricsTicker.C:
			w.metrics.RecordQueueDepth(w.sinkName, len(w.queue))
		case <-w.metricsStop:
			return
		}
	}
}

// Stats returns current statistics about the async writer.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    len(w.queue),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
	}
}
