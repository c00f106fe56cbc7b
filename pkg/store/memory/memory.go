package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"campuspay/pkg/store"
)

// LocalIDPrefix marks ids assigned by the local cache so they can be told
// apart from remote-assigned ids.
const LocalIDPrefix = "local-"

// LocalStore is the in-process fallback store. Each "<collection>_<accountId>"
// key holds a JSON-encoded sequence of records, mirroring browser local
// storage. It never evicts; Clear is the only way to shrink it.
type LocalStore struct {
	// data maps namespaced keys to JSON-encoded []store.Record
	data map[string][]byte

	// mu protects data and closed
	mu sync.RWMutex

	config Config
	closed bool

	// seq disambiguates ids generated within the same nanosecond
	seq atomic.Uint64
}

// Config holds configuration for the local store.
type Config struct {
	// Name is the backend identifier used in logs and metrics
	Name string

	// Now overrides the clock used for ids and timestamps (tests only)
	Now func() time.Time
}

// Stats describes the local store contents.
type Stats struct {
	Keys    int
	Records int
	Bytes   int
}

// New creates an empty local store.
func New(config Config) *LocalStore {
	if config.Name == "" {
		config.Name = "local"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &LocalStore{
		data:   make(map[string][]byte),
		config: config,
	}
}

// Name returns the backend name.
func (s *LocalStore) Name() string {
	return s.config.Name
}

// Read returns the records under the filter's account key that match it.
func (s *LocalStore) Read(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	key, err := store.LocalKey(collection, filter.AccountID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrUnavailable
	}

	records, err := s.decode(key)
	if err != nil {
		return nil, err
	}

	out := make([]store.Record, 0, len(records))
	for _, r := range records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Write appends record, or replaces the stored record with the same id.
// Records without an id get a locally generated one.
func (s *LocalStore) Write(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	if err := record.Validate(); err != nil {
		return store.Record{}, err
	}
	key, err := store.LocalKey(collection, record.AccountID)
	if err != nil {
		return store.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Record{}, store.ErrUnavailable
	}

	records, err := s.decode(key)
	if err != nil {
		return store.Record{}, err
	}

	if record.ID == "" {
		record.ID = s.nextID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.config.Now().UTC()
	}

	records = upsert(records, record)
	if err := s.encode(key, records); err != nil {
		return store.Record{}, err
	}
	return record, nil
}

// Remove deletes the matching records. Removing the last record drops the key.
func (s *LocalStore) Remove(ctx context.Context, collection store.Collection, filter store.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	key, err := store.LocalKey(collection, filter.AccountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrUnavailable
	}

	if filter.ID == "" {
		delete(s.data, key)
		return nil
	}

	records, err := s.decode(key)
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if !filter.Matches(r) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.data, key)
		return nil
	}
	return s.encode(key, kept)
}

// Merge upserts records mirrored from the remote store. Records absent from
// the batch are kept, and a local record is only replaced by a strictly newer
// one (by CreatedAt), so a mirror queued before a degraded write cannot undo it.
func (s *LocalStore) Merge(ctx context.Context, collection store.Collection, accountID string, records []store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := store.LocalKey(collection, accountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrUnavailable
	}

	existing, err := s.decode(key)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.AccountID != accountID || r.ID == "" {
			continue
		}
		existing = mergeNewer(existing, r)
	}
	return s.encode(key, existing)
}

// Clear drops every key.
func (s *LocalStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}

// Export returns the raw JSON stored under the namespaced key, or nil.
func (s *LocalStore) Export(collection store.Collection, accountID string) ([]byte, error) {
	key, err := store.LocalKey(collection, accountID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Stats returns current contents statistics.
func (s *LocalStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Keys: len(s.data)}
	for _, raw := range s.data {
		stats.Bytes += len(raw)
		var records []store.Record
		if err := json.Unmarshal(raw, &records); err == nil {
			stats.Records += len(records)
		}
	}
	return stats
}

// Close marks the store closed and drops its contents.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.data = nil
	s.mu.Unlock()
	return nil
}

// IsLocalID reports whether id was generated by a LocalStore.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

func (s *LocalStore) nextID() string {
	return fmt.Sprintf("%s%d-%d", LocalIDPrefix, s.config.Now().UnixNano(), s.seq.Add(1))
}

// decode must be called with mu held.
func (s *LocalStore) decode(key string) ([]store.Record, error) {
	raw, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	var records []store.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("local store: decode %s: %w", key, err)
	}
	return records, nil
}

// encode must be called with mu held for writing.
func (s *LocalStore) encode(key string, records []store.Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("local store: encode %s: %w", key, err)
	}
	s.data[key] = raw
	return nil
}

func upsert(records []store.Record, record store.Record) []store.Record {
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = record
			return records
		}
	}
	return append(records, record)
}

// mergeNewer is upsert that keeps the stored record unless r is newer.
func mergeNewer(records []store.Record, r store.Record) []store.Record {
	for i := range records {
		if records[i].ID == r.ID {
			if r.CreatedAt.After(records[i].CreatedAt) {
				records[i] = r
			}
			return records
		}
	}
	return append(records, r)
}
