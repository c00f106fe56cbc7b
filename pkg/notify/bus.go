package notify

import (
	"sync"
	"time"

	"campuspay/pkg/metrics"
)

// PaymentCompleted is published after every successful settlement.
const PaymentCompleted = "payment-completed"

// Event is a broadcast signal. Subscribers must not rely on anything beyond
// its name; AccountID is a hint for filtering.
type Event struct {
	Name      string    `json:"name"`
	AccountID string    `json:"account_id,omitempty"`
	At        time.Time `json:"at"`
}

// Bus fans events out to in-process subscribers. Publish never blocks. Events
// carry no guaranteed payload, so when a subscriber's buffer is full the new
// event is coalesced into the ones already pending: every subscriber still
// receives at least one event after each Publish, but not one per Publish.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]chan Event
	nextID  uint64
	buffer  int
	closed  bool
	metrics metrics.MetricsCollector
}

// NewBus creates a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int, collector metrics.MetricsCollector) *Bus {
	if buffer <= 0 {
		buffer = 8
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &Bus{
		subs:    make(map[string]map[uint64]chan Event),
		buffer:  buffer,
		metrics: collector,
	}
}

// Subscribe registers for event. The returned function unsubscribes and
// closes the channel; calling it more than once is safe.
func (b *Bus) Subscribe(event string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	if b.subs[event] == nil {
		b.subs[event] = make(map[uint64]chan Event)
	}
	b.subs[event][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[event][id]; ok {
				delete(b.subs[event], id)
				close(sub)
			}
		})
	}
}

// Publish signals every current subscriber of e.Name and returns how many
// got e as a new buffered event. The rest already had one pending.
func (b *Bus) Publish(e Event) int {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs[e.Name] {
		select {
		case ch <- e:
			delivered++
		default:
			// A pending event already stands for this one.
			b.metrics.RecordNotificationCoalesced(e.Name)
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers of event.
func (b *Bus) Subscribers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Close unsubscribes everyone.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
}
