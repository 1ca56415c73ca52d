package google

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

var totalHeaders = []string{ports.HeaderInvestments, ports.HeaderTotal, ports.HeaderTotalMinusInvestment}

// layout is the shape of the mirror sheet as read from the API: the header
// row and the 1-based sheet row of every month already present.
type layout struct {
	header  []string
	rows    map[string]int
	lastRow int
}

func parseLayout(values [][]interface{}) layout {
	l := layout{rows: make(map[string]int)}
	if len(values) == 0 {
		return l
	}
	l.header = toStrings(values[0])
	l.lastRow = len(values)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		month := safeGet(row, 0)
		if _, _, err := core.ParseMonthKey(month); err != nil {
			continue
		}
		l.rows[month] = i + 1
	}
	return l
}

// mergeHeader keeps the existing category columns in place and appends
// categories first seen in aggs, sorted, before the total columns.
func mergeHeader(existing []string, aggs []core.MonthlyAggregate) []string {
	var cats []string
	seen := map[string]bool{}
	for _, h := range existing {
		h = strings.TrimSpace(h)
		if h == "" || strings.EqualFold(h, ports.HeaderMonth) || isTotalHeader(h) || seen[h] {
			continue
		}
		seen[h] = true
		cats = append(cats, h)
	}

	var added []string
	for _, a := range aggs {
		for name := range a.CategoryTotals {
			if !seen[name] {
				seen[name] = true
				added = append(added, name)
			}
		}
	}
	sort.Strings(added)

	header := make([]string, 0, len(cats)+len(added)+1+len(totalHeaders))
	header = append(header, ports.HeaderMonth)
	header = append(header, cats...)
	header = append(header, added...)
	header = append(header, totalHeaders...)
	return header
}

func sameHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != b[i] {
			return false
		}
	}
	return true
}

func isTotalHeader(h string) bool {
	for _, t := range totalHeaders {
		if strings.EqualFold(h, t) {
			return true
		}
	}
	return false
}

// encodeRow renders agg in header order. Categories without a total are left
// blank.
func encodeRow(header []string, agg core.MonthlyAggregate) []interface{} {
	row := make([]interface{}, len(header))
	for i, h := range header {
		switch h {
		case ports.HeaderMonth:
			row[i] = agg.MonthKey
		case ports.HeaderInvestments:
			row[i] = core.FormatAmount(agg.InvestmentTotal)
		case ports.HeaderTotal:
			row[i] = core.FormatAmount(agg.Total)
		case ports.HeaderTotalMinusInvestment:
			row[i] = core.FormatAmount(agg.TotalMinusInvestment)
		default:
			if v, ok := agg.CategoryTotals[h]; ok {
				row[i] = core.FormatAmount(v)
			} else {
				row[i] = ""
			}
		}
	}
	return row
}

// decodeRow is the inverse of encodeRow.
func decodeRow(header []string, values []interface{}) (core.MonthlyAggregate, error) {
	row := toStrings(values)
	month := safeGet(row, indexOf(header, ports.HeaderMonth))
	if _, _, err := core.ParseMonthKey(month); err != nil {
		return core.MonthlyAggregate{}, err
	}
	agg := core.NewMonthlyAggregate(month)

	parse := func(col string, v string) (decimal.Decimal, error) {
		d, err := core.ParseAmount(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("month %s column %q: %w", month, col, err)
		}
		return d, nil
	}

	for i, h := range header {
		h = strings.TrimSpace(h)
		v := safeGet(row, i)
		if v == "" || strings.EqualFold(h, ports.HeaderMonth) {
			continue
		}
		d, err := parse(h, v)
		if err != nil {
			return core.MonthlyAggregate{}, err
		}
		switch {
		case strings.EqualFold(h, ports.HeaderInvestments):
			agg.InvestmentTotal = d
		case strings.EqualFold(h, ports.HeaderTotal):
			agg.Total = d
		case strings.EqualFold(h, ports.HeaderTotalMinusInvestment):
			agg.TotalMinusInvestment = d
		default:
			agg.CategoryTotals[h] = d
		}
	}
	return agg, nil
}

// columnName converts a 1-based column index to A1 letters.
func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
