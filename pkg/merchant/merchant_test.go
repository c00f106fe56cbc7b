package merchant

import (
	"testing"

	"campuspay/pkg/ledger"

	"github.com/shopspring/decimal"
)

func TestDefaultTable_Lookup(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		token string
		name  string
	}{
		{"STU10000001", "Campus Cafe"},
		{"STU23456789", "University Bookstore"},
		{"STU31111111", "Campus Market"},
		{"STU40000000", "Library Printing"},
		{"STU90000000", "Campus Cafe"},
		{"", "Campus Cafe"},
	}
	for _, tt := range tests {
		if got := table.Lookup(tt.token); got.Name != tt.name {
			t.Errorf("Lookup(%q): expected %s, got %s", tt.token, tt.name, got.Name)
		}
	}
}

func TestTable_LongestPrefixWins(t *testing.T) {
	short := Merchant{Name: "short", Amount: decimal.NewFromInt(1), Category: ledger.CategoryOther}
	long := Merchant{Name: "long", Amount: decimal.NewFromInt(2), Category: ledger.CategoryOther}
	table := NewTable(CampusCafe, map[string]Merchant{"STU": short, "STU12": long})

	if got := table.Lookup("STU12345678"); got.Name != "long" {
		t.Errorf("Expected longest prefix match, got %s", got.Name)
	}
	if got := table.Lookup("STU99999999"); got.Name != "short" {
		t.Errorf("Expected short prefix match, got %s", got.Name)
	}
}

func TestCampusCafeDefaults(t *testing.T) {
	if !CampusCafe.Amount.Equal(decimal.RequireFromString("10.99")) {
		t.Errorf("Expected 10.99, got %s", CampusCafe.Amount)
	}
	if CampusCafe.Category != ledger.CategoryDining {
		t.Errorf("Expected dining, got %v", CampusCafe.Category)
	}
}
