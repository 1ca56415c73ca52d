package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyAggregate is the per-month, per-category sum table plus derived totals.
type MonthlyAggregate struct {
	MonthKey             string
	CategoryTotals       map[string]decimal.Decimal
	InvestmentTotal      decimal.Decimal
	Total                decimal.Decimal
	TotalMinusInvestment decimal.Decimal
	UpdatedAt            time.Time
}

// CategoryLookup resolves a category name to its definition.
type CategoryLookup func(name string) (CategoryDefinition, bool)

// NewMonthlyAggregate returns an empty aggregate for month.
func NewMonthlyAggregate(month string) MonthlyAggregate {
	return MonthlyAggregate{
		MonthKey:       month,
		CategoryTotals: make(map[string]decimal.Decimal),
	}
}

// ComputeTotals derives the investment and spending totals from the category
// table. Categories unknown to lookup keep their entry in CategoryTotals
// but contribute to neither total.
func (a *MonthlyAggregate) ComputeTotals(lookup CategoryLookup) {
	investment := decimal.Zero
	total := decimal.Zero
	for name, amount := range a.CategoryTotals {
		def, ok := lookup(name)
		if !ok {
			continue
		}
		if def.IsInvestment {
			investment = investment.Add(amount)
		}
		if def.CountsTowardTotal() {
			total = total.Add(amount)
		}
	}
	a.InvestmentTotal = investment
	a.Total = total
	a.TotalMinusInvestment = total.Sub(investment)
}

// Categories returns the category names in sorted order.
func (a MonthlyAggregate) Categories() []string {
	names := make([]string, 0, len(a.CategoryTotals))
	for name := range a.CategoryTotals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the derived-total identity.
func (a MonthlyAggregate) Validate() error {
	if _, _, err := ParseMonthKey(a.MonthKey); err != nil {
		return err
	}
	if !a.TotalMinusInvestment.Equal(a.Total.Sub(a.InvestmentTotal)) {
		return fmt.Errorf("aggregate %s: total_minus_investment %s != total %s - investment %s",
			a.MonthKey, a.TotalMinusInvestment, a.Total, a.InvestmentTotal)
	}
	return nil
}

// Clone returns a deep copy of the aggregate.
func (a MonthlyAggregate) Clone() MonthlyAggregate {
	out := a
	out.CategoryTotals = make(map[string]decimal.Decimal, len(a.CategoryTotals))
	for k, v := range a.CategoryTotals {
		out.CategoryTotals[k] = v
	}
	return out
}

// ParseMonthKey splits a YYYY-MM key.
func ParseMonthKey(key string) (year, month int, err error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return t.Year(), int(t.Month()), nil
}

// MonthBounds returns the first day of the month and the first day of the next.
func MonthBounds(key string) (Date, Date, error) {
	y, m, err := ParseMonthKey(key)
	if err != nil {
		return Date{}, Date{}, err
	}
	start := NewDate(y, m, 1)
	return start, Date{Time: start.AddDate(0, 1, 0)}, nil
}
