package mock

import (
	"context"
	"errors"
	"sync/atomic"

	"campuspay/pkg/store"
)

// ErrInjected is the failure returned by NewFailingBackend.
var ErrInjected = errors.New("mock: injected failure")

// MockBackend is a store.Backend whose behaviour is set through function
// hooks. Call counts are tracked atomically.
type MockBackend struct {
	ReadFunc   func(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error)
	WriteFunc  func(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error)
	RemoveFunc func(ctx context.Context, collection store.Collection, filter store.Filter) error
	NameFunc   func() string
	CloseFunc  func() error

	readCalls   int64
	writeCalls  int64
	removeCalls int64
	closeCalls  int64
}

// Read implements store.Backend.
func (m *MockBackend) Read(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error) {
	atomic.AddInt64(&m.readCalls, 1)
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, collection, filter)
	}
	return nil, nil
}

// Write implements store.Backend. Without a hook the record is echoed back.
func (m *MockBackend) Write(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
	atomic.AddInt64(&m.writeCalls, 1)
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, collection, record)
	}
	return record, nil
}

// Remove implements store.Backend.
func (m *MockBackend) Remove(ctx context.Context, collection store.Collection, filter store.Filter) error {
	atomic.AddInt64(&m.removeCalls, 1)
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, collection, filter)
	}
	return nil
}

// Name implements store.Backend.
func (m *MockBackend) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock"
}

// Close implements store.Backend.
func (m *MockBackend) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// ReadCalls returns the number of Read calls.
func (m *MockBackend) ReadCalls() int {
	return int(atomic.LoadInt64(&m.readCalls))
}

// WriteCalls returns the number of Write calls.
func (m *MockBackend) WriteCalls() int {
	return int(atomic.LoadInt64(&m.writeCalls))
}

// RemoveCalls returns the number of Remove calls.
func (m *MockBackend) RemoveCalls() int {
	return int(atomic.LoadInt64(&m.removeCalls))
}

// CloseCalls returns the number of Close calls.
func (m *MockBackend) CloseCalls() int {
	return int(atomic.LoadInt64(&m.closeCalls))
}

// NewMockBackend creates a MockBackend with the given name and default hooks.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{
		NameFunc: func() string { return name },
	}
}

// NewFailingBackend creates a MockBackend whose every operation fails with ErrInjected.
func NewFailingBackend(name string) *MockBackend {
	return &MockBackend{
		NameFunc: func() string { return name },
		ReadFunc: func(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error) {
			return nil, ErrInjected
		},
		WriteFunc: func(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
			return store.Record{}, ErrInjected
		},
		RemoveFunc: func(ctx context.Context, collection store.Collection, filter store.Filter) error {
			return ErrInjected
		},
	}
}
