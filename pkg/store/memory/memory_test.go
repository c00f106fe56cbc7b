package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"campuspay/pkg/store"
)

func record(account, id, body string) store.Record {
	return store.Record{ID: id, AccountID: account, Data: json.RawMessage(body)}
}

func TestLocalStore_WriteRead(t *testing.T) {
	s := New(Config{Name: "test"})
	defer s.Close()

	ctx := context.Background()

	got, err := s.Read(ctx, store.Transactions, store.ByAccount("u1"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty result, got %d records", len(got))
	}

	written, err := s.Write(ctx, store.Transactions, record("u1", "", `{"amount":"10.99"}`))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !IsLocalID(written.ID) {
		t.Errorf("Expected a local id, got %q", written.ID)
	}
	if written.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	got, err = s.Read(ctx, store.Transactions, store.ByAccount("u1"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != written.ID {
		t.Fatalf("Expected the written record back, got %+v", got)
	}

	other, _ := s.Read(ctx, store.Transactions, store.ByAccount("u2"))
	if len(other) != 0 {
		t.Errorf("Expected no records for another account, got %d", len(other))
	}
}

func TestLocalStore_WriteUpserts(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	s.Write(ctx, store.Profiles, record("u1", "u1", `{"balance":"1"}`))
	s.Write(ctx, store.Profiles, record("u1", "u1", `{"balance":"2"}`))

	got, _ := s.Read(ctx, store.Profiles, store.Filter{AccountID: "u1", ID: "u1"})
	if len(got) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(got))
	}
	if string(got[0].Data) != `{"balance":"2"}` {
		t.Errorf("Expected replaced data, got %s", got[0].Data)
	}
}

func TestLocalStore_Remove(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	s.Write(ctx, store.ChatMessages, record("u1", "a", `{}`))
	s.Write(ctx, store.ChatMessages, record("u1", "b", `{}`))

	if err := s.Remove(ctx, store.ChatMessages, store.Filter{AccountID: "u1", ID: "a"}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	got, _ := s.Read(ctx, store.ChatMessages, store.ByAccount("u1"))
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("Expected only b to remain, got %+v", got)
	}

	if err := s.Remove(ctx, store.ChatMessages, store.ByAccount("u1")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	raw, _ := s.Export(store.ChatMessages, "u1")
	if raw != nil {
		t.Errorf("Expected key to be dropped, got %s", raw)
	}
}

func TestLocalStore_MergeKeepsLocalRecords(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	local, _ := s.Write(ctx, store.Transactions, record("u1", "", `{"n":1}`))

	err := s.Merge(ctx, store.Transactions, "u1", []store.Record{
		record("u1", "remote-1", `{"n":2}`),
		record("u2", "remote-2", `{"n":3}`),
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	got, _ := s.Read(ctx, store.Transactions, store.ByAccount("u1"))
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}
	if got[0].ID != local.ID || got[1].ID != "remote-1" {
		t.Errorf("Unexpected order or contents: %+v", got)
	}
}

func TestLocalStore_ExportUsesNamespacedKey(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(Config{Now: func() time.Time { return now }})
	ctx := context.Background()

	s.Write(ctx, store.ChatMessages, record("u1", "m1", `{"text":"hi"}`))

	raw, err := s.Export(store.ChatMessages, "u1")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var records []store.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatalf("Exported data is not a JSON sequence: %v", err)
	}
	if len(records) != 1 || !records[0].CreatedAt.Equal(now) {
		t.Errorf("Unexpected exported records: %+v", records)
	}

	stats := s.Stats()
	if stats.Keys != 1 || stats.Records != 1 {
		t.Errorf("Expected 1 key and 1 record, got %+v", stats)
	}
}

func TestLocalStore_Validation(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	if _, err := s.Read(ctx, store.Profiles, store.Filter{}); !errors.Is(err, store.ErrInvalidFilter) {
		t.Errorf("Expected ErrInvalidFilter, got %v", err)
	}
	if _, err := s.Write(ctx, "wallets", record("u1", "", `{}`)); !errors.Is(err, store.ErrUnknownCollection) {
		t.Errorf("Expected ErrUnknownCollection, got %v", err)
	}
	if _, err := s.Write(ctx, store.Profiles, record("", "", `{}`)); !errors.Is(err, store.ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
}

func TestLocalStore_Closed(t *testing.T) {
	s := New(Config{})
	s.Close()

	_, err := s.Read(context.Background(), store.Profiles, store.ByAccount("u1"))
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable after close, got %v", err)
	}
}

func TestLocalStore_Concurrency(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Write(ctx, store.Transactions, record("u1", "", `{}`)); err != nil {
				t.Errorf("Concurrent Write failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Read(ctx, store.Transactions, store.ByAccount("u1"))
	if len(got) != 20 {
		t.Errorf("Expected 20 records, got %d", len(got))
	}
}

func TestLocalStore_MergeOnlyReplacesNewer(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	current := record("u1", "u1", `{"balance":"89"}`)
	current.CreatedAt = at
	if _, err := s.Write(ctx, store.Profiles, current); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	stale := record("u1", "u1", `{"balance":"100"}`)
	stale.CreatedAt = at.Add(-time.Minute)
	same := record("u1", "u1", `{"balance":"50"}`)
	same.CreatedAt = at
	if err := s.Merge(ctx, store.Profiles, "u1", []store.Record{stale, same}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	got, _ := s.Read(ctx, store.Profiles, store.Filter{AccountID: "u1", ID: "u1"})
	if len(got) != 1 || string(got[0].Data) != `{"balance":"89"}` {
		t.Errorf("Expected the local record to survive older mirrors, got %+v", got)
	}

	newer := record("u1", "u1", `{"balance":"70"}`)
	newer.CreatedAt = at.Add(time.Minute)
	if err := s.Merge(ctx, store.Profiles, "u1", []store.Record{newer}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	got, _ = s.Read(ctx, store.Profiles, store.Filter{AccountID: "u1", ID: "u1"})
	if len(got) != 1 || string(got[0].Data) != `{"balance":"70"}` {
		t.Errorf("Expected a newer mirror to replace the record, got %+v", got)
	}
}
