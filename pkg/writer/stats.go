package writer

import "errors"

// AsyncWriterStats provides statistics about mirror operations.
type AsyncWriterStats struct {
	// QueueDepth is the current number of pending batches
	QueueDepth int

	// DroppedWrites is the number of batches dropped due to backpressure
	DroppedWrites int64

	// TotalWrites is the number of batches accepted
	TotalWrites int64

	// FailedWrites is the number of batches the sink rejected
	FailedWrites int64
}

// Errors returned by async writer operations.
var (
	// ErrQueueFull is returned when the queue stays full past MaxWaitTime
	ErrQueueFull = errors.New("writer: queue full, mirror dropped")

	// ErrWriterClosed is returned when mirroring to a closed writer
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush() times out waiting for the queue to drain
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
