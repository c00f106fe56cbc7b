package merchant

import (
	"sort"
	"strings"

	"campuspay/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Merchant is the payee and default charge a card token resolves to.
type Merchant struct {
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Amount   decimal.Decimal `json:"amount"`
	Category ledger.Category `json:"category"`
}

// Table resolves card tokens by their longest matching prefix.
type Table struct {
	prefixes []string
	entries  map[string]Merchant
	fallback Merchant
}

// NewTable creates a table. Tokens matching no prefix resolve to fallback.
func NewTable(fallback Merchant, byPrefix map[string]Merchant) *Table {
	t := &Table{
		entries:  make(map[string]Merchant, len(byPrefix)),
		fallback: fallback,
	}
	for prefix, m := range byPrefix {
		t.entries[prefix] = m
		t.prefixes = append(t.prefixes, prefix)
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		if len(t.prefixes[i]) != len(t.prefixes[j]) {
			return len(t.prefixes[i]) > len(t.prefixes[j])
		}
		return t.prefixes[i] < t.prefixes[j]
	})
	return t
}

// CampusCafe is the default merchant.
var CampusCafe = Merchant{
	Name:     "Campus Cafe",
	Location: "Student Union",
	Amount:   decimal.RequireFromString("10.99"),
	Category: ledger.CategoryDining,
}

// DefaultTable returns the campus merchant table.
func DefaultTable() *Table {
	return NewTable(CampusCafe, map[string]Merchant{
		"STU1": CampusCafe,
		"STU2": {
			Name:     "University Bookstore",
			Location: "Main Campus",
			Amount:   decimal.RequireFromString("27.99"),
			Category: ledger.CategoryBooks,
		},
		"STU3": {
			Name:     "Campus Market",
			Location: "East Residence",
			Amount:   decimal.RequireFromString("15.75"),
			Category: ledger.CategoryShopping,
		},
		"STU4": {
			Name:     "Library Printing",
			Location: "Library",
			Amount:   decimal.RequireFromString("3.50"),
			Category: ledger.CategoryOther,
		},
	})
}

// Lookup resolves token.
func (t *Table) Lookup(token string) Merchant {
	for _, prefix := range t.prefixes {
		if strings.HasPrefix(token, prefix) {
			return t.entries[prefix]
		}
	}
	return t.fallback
}
