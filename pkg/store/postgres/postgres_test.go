package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"campuspay/pkg/store"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "db.internal"
	cfg.Port = 6543

	want := "host=db.internal port=6543 user=postgres password=postgres dbname=campuspay sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("Expected DSN %q, got %q", want, got)
	}
}

func setupTestPostgres(t *testing.T) *PostgresStore {
	if os.Getenv("CAMPUSPAY_TEST_POSTGRES") == "" {
		t.Skip("CAMPUSPAY_TEST_POSTGRES not set")
	}
	s, err := New(DefaultConfig())
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	return s
}

func TestPostgresStore_UpsertKeepsOneRow(t *testing.T) {
	s := setupTestPostgres(t)
	defer s.Close()

	ctx := context.Background()
	defer s.Remove(ctx, store.Profiles, store.ByAccount("pg-acct"))

	first, err := s.Write(ctx, store.Profiles, store.Record{
		AccountID: "pg-acct",
		Data:      json.RawMessage(`{"balance":"5.00"}`),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	first.Data = json.RawMessage(`{"balance":"4.00"}`)
	first.CreatedAt = first.CreatedAt.Add(time.Minute)
	if _, err := s.Write(ctx, store.Profiles, first); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	records, err := s.Read(ctx, store.Profiles, store.ByAccount("pg-acct"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if !records[0].CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Expected upsert to move CreatedAt to %v, got %v", first.CreatedAt, records[0].CreatedAt)
	}
}
