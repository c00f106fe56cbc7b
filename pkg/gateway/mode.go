package gateway

import "sync/atomic"

// Mode says which backend serves persistence calls for a session.
type Mode int32

const (
	// ModeRemote means the authoritative remote store is tried first.
	ModeRemote Mode = iota
	// ModeLocal means calls go straight to the local cache.
	ModeLocal
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Degrade returns the mode after a remote failure. Degradation is one-way:
// nothing in this package ever promotes Local back to Remote.
func (m Mode) Degrade() Mode {
	return ModeLocal
}

// Latch tracks the mode of one session. The zero value starts in ModeRemote.
type Latch struct {
	v atomic.Int32
}

// NewLatch returns a latch starting at mode.
func NewLatch(mode Mode) *Latch {
	l := &Latch{}
	l.v.Store(int32(mode))
	return l
}

// Mode returns the current mode.
func (l *Latch) Mode() Mode {
	return Mode(l.v.Load())
}

// Observe folds the effective mode of a completed call into the latch and
// reports whether this call degraded it.
func (l *Latch) Observe(effective Mode) bool {
	if effective != ModeLocal {
		return false
	}
	degraded := l.Mode().Degrade()
	return l.v.Swap(int32(degraded)) != int32(degraded)
}
