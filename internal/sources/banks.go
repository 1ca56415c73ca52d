package sources

import (
	"fmt"
	"io"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// Chase card exports: Transaction Date, Post Date, Description, Category,
// Type, Amount, Memo. Purchases are negative in the file.
type Chase struct{}

func (Chase) Tag() string { return "chase" }

func (Chase) Detect(header []string) bool {
	return headerHas(header, "Transaction Date", "Post Date", "Description", "Amount")
}

func (c Chase) Parse(r io.Reader) ([]core.RawRow, error) {
	t, err := readTable(r, nil)
	if err != nil {
		return nil, err
	}
	if !t.has("Transaction Date", "Description", "Amount") {
		return nil, fmt.Errorf("missing chase columns")
	}
	out := make([]core.RawRow, 0, len(t.rows))
	for i, row := range t.rows {
		desc := t.get(row, "Description")
		category := t.get(row, "Category")
		out = append(out, core.RawRow{
			Line:        i + 2,
			Date:        t.get(row, "Transaction Date"),
			Description: desc,
			Amount:      signed(t.get(row, "Amount"), negate, category, desc),
			Category:    category,
			Source:      c.Tag(),
		})
	}
	return out, nil
}

// Citi exports split Debit and Credit columns. A credit is money in.
type Citi struct{}

func (Citi) Tag() string { return "citi" }

func (Citi) Detect(header []string) bool {
	return headerHas(header, "Date", "Description", "Debit", "Credit")
}

func (c Citi) Parse(r io.Reader) ([]core.RawRow, error) {
	t, err := readTable(r, nil)
	if err != nil {
		return nil, err
	}
	if !t.has("Date", "Description", "Debit", "Credit") {
		return nil, fmt.Errorf("missing citi columns")
	}
	out := make([]core.RawRow, 0, len(t.rows))
	for i, row := range t.rows {
		desc := t.get(row, "Description")
		raw, adjust := t.get(row, "Debit"), func(d decimal.Decimal) decimal.Decimal { return d.Abs() }
		if raw == "" {
			raw, adjust = t.get(row, "Credit"), func(d decimal.Decimal) decimal.Decimal { return d.Abs().Neg() }
		}
		category := t.get(row, "Category")
		out = append(out, core.RawRow{
			Line:        i + 2,
			Date:        t.get(row, "Date"),
			Description: desc,
			Amount:      signed(raw, adjust, category, desc),
			Category:    category,
			Source:      c.Tag(),
		})
	}
	return out, nil
}

var wellsColumns = []string{"Date", "Amount", "Marker", "Check", "Description"}

// Wells Fargo exports have no header: date, amount, two unused columns,
// description. Debits are negative in the file.
type Wells struct{}

func (Wells) Tag() string { return "wells" }

func (Wells) Detect(header []string) bool {
	if len(header) != len(wellsColumns) {
		return false
	}
	if _, err := core.ParseAmount(header[1]); err != nil {
		return false
	}
	_, err := parseWellsDate(header[0])
	return err == nil
}

func parseWellsDate(s string) (core.Date, error) {
	for _, layout := range []string{"01/02/2006", "1/2/2006"} {
		if d, err := parseDateLayout(layout, s); err == nil {
			return d, nil
		}
	}
	return core.Date{}, fmt.Errorf("not a wells date: %q", s)
}

func (w Wells) Parse(r io.Reader) ([]core.RawRow, error) {
	t, err := readTable(r, wellsColumns)
	if err != nil {
		return nil, err
	}
	out := make([]core.RawRow, 0, len(t.rows))
	for i, row := range t.rows {
		desc := t.get(row, "Description")
		out = append(out, core.RawRow{
			Line:        i + 1,
			Date:        t.get(row, "Date"),
			Description: desc,
			Amount:      signed(t.get(row, "Amount"), negate, "", desc),
			Source:      w.Tag(),
		})
	}
	return out, nil
}
