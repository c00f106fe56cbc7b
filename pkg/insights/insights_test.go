package insights

import (
	"testing"
	"time"

	"campuspay/pkg/ledger"

	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)

func fixture() []ledger.Entry {
	mk := func(title, amount string, cat ledger.Category, at time.Time, st ledger.Status) ledger.Entry {
		return ledger.Entry{
			AccountID: "u1",
			Title:     title,
			Amount:    decimal.RequireFromString(amount),
			Category:  cat,
			Timestamp: at,
			Status:    st,
		}
	}
	return []ledger.Entry{
		mk("Campus Cafe", "8.50", ledger.CategoryDining, now.Add(-30*time.Minute), ledger.StatusCompleted),
		mk("University Bookstore", "27.99", ledger.CategoryBooks, now.Add(-3*time.Hour), ledger.StatusCompleted),
		mk("Vending", "2.00", ledger.CategoryDining, now.Add(-4*time.Hour), ledger.StatusFailed),
		mk("Monthly Plan", "10.00", ledger.CategoryPayment, now.Add(-24*time.Hour), ledger.StatusCompleted),
		mk("Campus Market", "15.75", ledger.CategoryShopping, now.Add(-48*time.Hour), ledger.StatusPending),
	}
}

func TestSpentOn(t *testing.T) {
	got := SpentOn(fixture(), now)
	if !got.Equal(decimal.RequireFromString("36.49")) {
		t.Errorf("Expected 36.49 spent today, got %s", got)
	}
}

func TestByCategory(t *testing.T) {
	got := ByCategory(fixture())

	if len(got) != len(ledger.Categories()) {
		t.Errorf("Expected every category present, got %d", len(got))
	}
	if !got[ledger.CategoryDining].Equal(decimal.RequireFromString("8.50")) {
		t.Errorf("Expected dining 8.50, got %s", got[ledger.CategoryDining])
	}
	if !got[ledger.CategoryShopping].IsZero() {
		t.Errorf("Expected pending shopping to be excluded, got %s", got[ledger.CategoryShopping])
	}
}

func TestRecent(t *testing.T) {
	entries := fixture()
	if got := Recent(entries, 2); len(got) != 2 || got[0].Title != "Campus Cafe" {
		t.Errorf("Unexpected recent entries: %+v", got)
	}
	if got := Recent(entries, 50); len(got) != len(entries) {
		t.Errorf("Expected all entries, got %d", len(got))
	}
	if got := Recent(entries, 0); got != nil {
		t.Errorf("Expected nil for n=0, got %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(fixture(), now, 3)
	if s.Count != 5 || len(s.Recent) != 3 || len(s.Categories) != 5 {
		t.Errorf("Unexpected summary: %+v", s)
	}
	if s.Categories[0].Category != ledger.CategoryDining {
		t.Errorf("Expected categories in display order, got %v first", s.Categories[0].Category)
	}
}
