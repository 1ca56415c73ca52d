// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts as they appear in
// bank exports and statement text into exact decimals.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a textual amount to an exact decimal.
//
// It accepts an optional currency symbol, thousands separators, a leading sign
// and accounting-style parentheses for negatives. A lone comma followed by
// exactly two digits is read as a decimal comma.
//
// Examples:
//
//	ParseAmount("4.50")      -> 4.5
//	ParseAmount("$1,234.56") -> 1234.56
//	ParseAmount("(12.00)")   -> -12
//	ParseAmount("12,34")     -> 12.34
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.TrimLeft(s, "$€£")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	s = strings.TrimLeft(strings.TrimSpace(s), "$€£")

	if strings.Contains(s, ",") {
		last := strings.LastIndex(s, ",")
		if !strings.Contains(s, ".") && len(s)-last-1 == 2 && strings.Count(s, ",") == 1 {
			s = s[:last] + "." + s[last+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	if s == "" || strings.ContainsAny(s, "+-eE ") {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
