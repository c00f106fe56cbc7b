package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"campuspay/pkg/store"
)

func setupTestRedis(t *testing.T) *RedisStore {
	config := DefaultConfig()
	config.Name = "TestRedis"
	config.KeyPrefix = "test:campuspay:"
	config.DialTimeout = 2 * time.Second

	r, err := New(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	ctx := context.Background()
	if err := r.FlushDB(ctx); err != nil {
		r.Close()
		t.Skipf("Redis not usable: %v", err)
	}
	return r
}

func TestNew_NoAddress(t *testing.T) {
	_, err := New(Config{Name: "empty"})
	if err == nil {
		t.Fatal("Expected error when no address is configured")
	}
}

func TestRedisStore_WriteRead(t *testing.T) {
	r := setupTestRedis(t)
	defer r.Close()

	ctx := context.Background()

	written, err := r.Write(ctx, store.Transactions, store.Record{
		AccountID: "acct-1",
		Data:      json.RawMessage(`{"amount":"10.99"}`),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if written.ID == "" {
		t.Fatal("Expected an id to be assigned")
	}

	records, err := r.Read(ctx, store.Transactions, store.ByAccount("acct-1"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ID != written.ID {
		t.Errorf("Expected id %s, got %s", written.ID, records[0].ID)
	}

	one, err := r.Read(ctx, store.Transactions, store.Filter{AccountID: "acct-1", ID: written.ID})
	if err != nil {
		t.Fatalf("Read by id failed: %v", err)
	}
	if len(one) != 1 {
		t.Errorf("Expected 1 record by id, got %d", len(one))
	}
}

func TestRedisStore_Remove(t *testing.T) {
	r := setupTestRedis(t)
	defer r.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Write(ctx, store.ChatMessages, store.Record{AccountID: "acct-2", Data: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if err := r.Remove(ctx, store.ChatMessages, store.ByAccount("acct-2")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	records, err := r.Read(ctx, store.ChatMessages, store.ByAccount("acct-2"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected 0 records after remove, got %d", len(records))
	}
}
