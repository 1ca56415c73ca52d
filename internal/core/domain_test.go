package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateMonthKeyAndSameMonth(t *testing.T) {
	d := NewDate(2024, 3, 1)
	if d.MonthKey() != "2024-03" {
		t.Fatalf("expected 2024-03, got %s", d.MonthKey())
	}
	if !d.SameMonth(NewDate(2024, 3, 28)) {
		t.Fatalf("expected same month")
	}
	if d.SameMonth(NewDate(2023, 3, 1)) {
		t.Fatalf("different years must not be the same month")
	}
	if d.String() != "2024-03-01" {
		t.Fatalf("unexpected string %s", d.String())
	}
}

func TestDateOfDropsClock(t *testing.T) {
	got := DateOf(time.Date(2024, 5, 6, 23, 59, 0, 0, time.FixedZone("x", -7*3600)))
	if !got.Equal(NewDate(2024, 5, 6).Time) {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:        NewDate(2025, 1, 1),
		Description: "COFFEE",
		Amount:      decimal.RequireFromString("4.50"),
		Category:    "Dining",
		Source:      "chase",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Date: Date{}, Description: "a", Category: "c", Source: "s"},
		{Date: NewDate(2025, 1, 1), Description: " ", Category: "c", Source: "s"},
		{Date: NewDate(2025, 1, 1), Description: "a", Category: "", Source: "s"},
		{Date: NewDate(2025, 1, 1), Description: "a", Category: "c", Source: ""},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionIdentityAndManual(t *testing.T) {
	tx := Transaction{IdentityHash: "abc", Rank: 2, BatchID: "b1"}
	if tx.Identity().String() != "abc#2" {
		t.Fatalf("unexpected identity %s", tx.Identity())
	}
	if tx.IsManual() {
		t.Fatalf("batch transaction reported as manual")
	}
	if !(Transaction{}).IsManual() {
		t.Fatalf("transaction without batch should be manual")
	}
}

func TestCategoryDefinitionMatches(t *testing.T) {
	c := CategoryDefinition{Name: "Dining", Keywords: []string{"Starbucks", "cafe"}}
	if !c.Matches("STARBUCKS #123 SEATTLE") {
		t.Fatalf("expected keyword match")
	}
	if c.Matches("SHELL OIL") {
		t.Fatalf("unexpected match")
	}
	if !(CategoryDefinition{Name: "Dining"}).CountsTowardTotal() {
		t.Fatalf("plain category counts toward total")
	}
	if (CategoryDefinition{IsIncome: true}).CountsTowardTotal() {
		t.Fatalf("income must not count toward total")
	}
}
