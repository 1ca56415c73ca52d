package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"4.50", "4.5", true},
		{"4.5", "4.5", true},
		{"$1,234.56", "1234.56", true},
		{"-12.00", "-12", true},
		{"(12.00)", "-12", true},
		{"12,34", "12.34", true},
		{"1,234", "1234", true},
		{" +2.50 ", "2.5", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"--1", "", false},
		{"1e5", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("4.5")); got != "4.50" {
		t.Fatalf("expected 4.50, got %s", got)
	}
}
