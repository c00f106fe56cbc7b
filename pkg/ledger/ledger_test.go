package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"campuspay/pkg/gateway"
	"campuspay/pkg/store"
	"campuspay/pkg/store/memory"

	"github.com/shopspring/decimal"
)

func newLedger(t *testing.T) (*Ledger, *memory.LocalStore) {
	t.Helper()
	local := memory.New(memory.Config{})
	gw, err := gateway.New(gateway.Config{Selector: gateway.StaticSelector{Local: local}})
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	return New(gw, nil), local
}

func entry(title string, amount string, at time.Time) Entry {
	return Entry{
		AccountID: "u1",
		Amount:    decimal.RequireFromString(amount),
		Title:     title,
		Location:  "Student Union",
		Category:  CategoryDining,
		Timestamp: at,
		Status:    StatusCompleted,
	}
}

func TestLedger_AppendAssignsID(t *testing.T) {
	l, _ := newLedger(t)

	e, mode, err := l.Append(context.Background(), gateway.ModeLocal, entry("Campus Cafe", "10.99", time.Time{}))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if e.ID == "" {
		t.Error("Expected an assigned id")
	}
	if e.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
	if mode != gateway.ModeLocal {
		t.Errorf("Expected mode local, got %v", mode)
	}
}

func TestLedger_AppendValidation(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	bad := []Entry{
		entry("Campus Cafe", "0", time.Time{}),
		entry("Campus Cafe", "-1", time.Time{}),
		entry("", "1", time.Time{}),
		{AccountID: "u1", Amount: decimal.NewFromInt(1), Title: "x", Status: StatusCompleted},
		{ID: "preset", AccountID: "u1", Amount: decimal.NewFromInt(1), Title: "x", Category: CategoryOther, Status: StatusCompleted},
	}
	for i, e := range bad {
		if _, _, err := l.Append(ctx, gateway.ModeLocal, e); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("Case %d: expected ErrInvalidEntry, got %v", i, err)
		}
	}
}

func TestLedger_FetchNewestFirst(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l.Append(ctx, gateway.ModeLocal, entry("Old", "1", base.Add(-2*time.Hour)))
	l.Append(ctx, gateway.ModeLocal, entry("New", "2", base))
	l.Append(ctx, gateway.ModeLocal, entry("Mid", "3", base.Add(-time.Hour)))

	got, _, err := l.Fetch(ctx, gateway.ModeLocal, "u1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	if got[0].Title != "New" || got[1].Title != "Mid" || got[2].Title != "Old" {
		t.Errorf("Unexpected order: %s, %s, %s", got[0].Title, got[1].Title, got[2].Title)
	}
}

func TestLedger_FetchSkipsCorruptRecords(t *testing.T) {
	l, local := newLedger(t)
	ctx := context.Background()

	l.Append(ctx, gateway.ModeLocal, entry("Campus Cafe", "10.99", time.Time{}))
	local.Write(ctx, store.Transactions, store.Record{AccountID: "u1", Data: []byte(`{"category":"gambling"}`)})

	got, _, err := l.Fetch(ctx, gateway.ModeLocal, "u1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected the corrupt record to be skipped, got %d entries", len(got))
	}
}

func TestCategoryJSON(t *testing.T) {
	data, err := json.Marshal(CategoryBooks)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"books"` {
		t.Errorf("Expected \"books\", got %s", data)
	}

	var c Category
	if err := json.Unmarshal([]byte(`"lottery"`), &c); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry for unknown category, got %v", err)
	}
	if _, err := json.Marshal(Category(0)); err == nil {
		t.Error("Expected zero category to fail to marshal")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		got, err := ParseStatus(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q): got %v, %v", s, got, err)
		}
	}
	if _, err := ParseStatus("refunded"); err == nil {
		t.Error("Expected unknown status to be rejected")
	}
}
