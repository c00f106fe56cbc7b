// Package insights derives reporting figures from a fetched ledger. Only
// completed entries count as spend.
package insights

import (
	"time"

	"campuspay/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Summary is what the home and analytics views display.
type Summary struct {
	SpentToday decimal.Decimal                     `json:"spent_today"`
	ByCategory map[ledger.Category]decimal.Decimal `json:"-"`
	Categories []CategoryTotal                     `json:"by_category"`
	Recent     []ledger.Entry                      `json:"recent"`
	Count      int                                 `json:"count"`
}

// CategoryTotal is one row of the spend breakdown.
type CategoryTotal struct {
	Category ledger.Category `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

func counts(e ledger.Entry) bool {
	switch e.Status {
	case ledger.StatusCompleted:
		return true
	case ledger.StatusPending, ledger.StatusFailed:
		return false
	default:
		return false
	}
}

// SpentOn sums completed spend on the calendar day of day, in day's location.
func SpentOn(entries []ledger.Entry, day time.Time) decimal.Decimal {
	y, m, d := day.Date()
	total := decimal.Zero
	for _, e := range entries {
		if !counts(e) {
			continue
		}
		ey, em, ed := e.Timestamp.In(day.Location()).Date()
		if ey == y && em == m && ed == d {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// ByCategory sums completed spend per category. Every category is present.
func ByCategory(entries []ledger.Entry) map[ledger.Category]decimal.Decimal {
	totals := make(map[ledger.Category]decimal.Decimal, len(ledger.Categories()))
	for _, c := range ledger.Categories() {
		totals[c] = decimal.Zero
	}
	for _, e := range entries {
		if !counts(e) || !e.Category.Valid() {
			continue
		}
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}
	return totals
}

// Recent returns up to n entries. entries must already be newest first, as
// ledger.Fetch returns them.
func Recent(entries []ledger.Entry, n int) []ledger.Entry {
	if n <= 0 {
		return nil
	}
	if n > len(entries) {
		n = len(entries)
	}
	return append([]ledger.Entry(nil), entries[:n]...)
}

// Summarize computes the full summary as of now.
func Summarize(entries []ledger.Entry, now time.Time, recent int) Summary {
	byCategory := ByCategory(entries)
	rows := make([]CategoryTotal, 0, len(byCategory))
	for _, c := range ledger.Categories() {
		rows = append(rows, CategoryTotal{Category: c, Total: byCategory[c]})
	}
	return Summary{
		SpentToday: SpentOn(entries, now),
		ByCategory: byCategory,
		Categories: rows,
		Recent:     Recent(entries, recent),
		Count:      len(entries),
	}
}
