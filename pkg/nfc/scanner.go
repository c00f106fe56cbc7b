package nfc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// ErrCapabilityUnavailable is returned when the device cannot scan.
var ErrCapabilityUnavailable = errors.New("nfc: scan capability unavailable")

// TokenPrefix starts every simulated card token.
const TokenPrefix = "STU"

// ScanEvent reports scan progress. The final event carries the card token.
type ScanEvent struct {
	Progress int
	Token    string
}

// Detected reports whether the event carries a card token.
func (e ScanEvent) Detected() bool {
	return e.Token != ""
}

// Scanner is the hardware boundary. The channel is closed after the event
// carrying the token, or early if ctx is cancelled.
type Scanner interface {
	BeginScan(ctx context.Context) (<-chan ScanEvent, error)
}

// SimulatorConfig configures the simulated reader.
type SimulatorConfig struct {
	// Step is the progress increment per tick (default: 5)
	Step int

	// Interval is the tick period (default: 100ms)
	Interval time.Duration

	// Unavailable makes BeginScan fail with ErrCapabilityUnavailable
	Unavailable bool

	// ExpectedTokens sizes the filter of issued tokens (default: 100000)
	ExpectedTokens uint
}

// Simulator is a timer-driven Scanner. Tokens are "STU" plus 8 digits and are
// never issued twice by the same simulator.
type Simulator struct {
	config SimulatorConfig

	mu     sync.Mutex
	issued *bloom.BloomFilter
}

// NewSimulator creates a simulator.
func NewSimulator(config SimulatorConfig) *Simulator {
	if config.Step <= 0 {
		config.Step = 5
	}
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if config.ExpectedTokens == 0 {
		config.ExpectedTokens = 100000
	}
	return &Simulator{
		config: config,
		issued: bloom.NewWithEstimates(config.ExpectedTokens, 0.001),
	}
}

// BeginScan starts a scan.
func (s *Simulator) BeginScan(ctx context.Context) (<-chan ScanEvent, error) {
	if s.config.Unavailable {
		return nil, ErrCapabilityUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := make(chan ScanEvent, 1)
	go s.run(ctx, events)
	return events, nil
}

func (s *Simulator) run(ctx context.Context, events chan<- ScanEvent) {
	defer close(events)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	progress := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		progress += s.config.Step
		if progress >= 100 {
			select {
			case events <- ScanEvent{Progress: 100, Token: s.nextToken()}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case events <- ScanEvent{Progress: progress}:
		case <-ctx.Done():
			return
		}
	}
}

// nextToken draws until the filter has never seen the token. A false
// positive only costs another draw.
func (s *Simulator) nextToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		token := fmt.Sprintf("%s%08d", TokenPrefix, rand.IntN(100000000))
		if !s.issued.TestAndAddString(token) {
			return token
		}
	}
}
