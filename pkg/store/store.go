package store

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names a logical table in the store.
type Collection string

// Known collections.
const (
	Profiles     Collection = "profiles"
	Transactions Collection = "transactions"
	ChatMessages Collection = "chat_messages"
)

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	switch c {
	case Profiles, Transactions, ChatMessages:
		return true
	default:
		return false
	}
}

// Backend is a table store holding per-account records.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Read returns the records of collection matching filter, in insertion order.
	// An empty result is not an error.
	Read(ctx context.Context, collection Collection, filter Filter) ([]Record, error)

	// Write stores record. A record without an ID is assigned one by the
	// backend; a record whose ID already exists replaces the stored one.
	// The stored record is returned.
	Write(ctx context.Context, collection Collection, record Record) (Record, error)

	// Remove deletes every record of collection matching filter.
	Remove(ctx context.Context, collection Collection, filter Filter) error

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases resources held by the backend.
	Close() error
}

// Record is one row of a collection. Data holds the domain payload as JSON
// so the store stays agnostic of the domain types layered above it.
type Record struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Data      json.RawMessage `json:"data"`
	// CreatedAt moves forward on upsert and orders mirrored copies
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks the fields every backend relies on.
func (r Record) Validate() error {
	if r.AccountID == "" {
		return ErrInvalidRecord
	}
	if len(r.Data) > 0 && !json.Valid(r.Data) {
		return ErrInvalidRecord
	}
	return nil
}

// Filter selects records. AccountID is required; ID narrows to one record.
type Filter struct {
	AccountID string
	ID        string
}

// Matches reports whether r is selected by f.
func (f Filter) Matches(r Record) bool {
	if r.AccountID != f.AccountID {
		return false
	}
	return f.ID == "" || r.ID == f.ID
}

// Validate rejects filters that would match across accounts.
func (f Filter) Validate() error {
	if f.AccountID == "" {
		return ErrInvalidFilter
	}
	return nil
}

// ByAccount is shorthand for a filter over all of one account's records.
func ByAccount(accountID string) Filter {
	return Filter{AccountID: accountID}
}
