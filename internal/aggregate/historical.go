package aggregate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// HistoricalSheet is the worksheet holding one row per month.
const HistoricalSheet = "Expenses"

var monthLabelLayouts = []string{
	"January 2006",
	"Jan 2006",
	"Jan-06",
	"January-06",
	"2006-01",
	"2006-01-02",
	"1/2/2006",
	"01-02-06",
	"1/2/06",
}

var summaryRowMarkers = []string{"average", "total", "percent", "%"}

// Categories is the catalog view needed to import a workbook.
type Categories interface {
	Names() []string
	Lookup(name string) (core.CategoryDefinition, bool)
}

// HistoricalImporter seeds aggregates from a spreadsheet kept before
// transaction-level imports existed.
type HistoricalImporter struct {
	store      storage.AggregateStore
	categories Categories
	logger     *log.Logger
}

func NewHistoricalImporter(store storage.AggregateStore, categories Categories, logger *log.Logger) *HistoricalImporter {
	if logger == nil {
		logger = log.Default()
	}
	return &HistoricalImporter{
		store:      store,
		categories: categories,
		logger:     logger.WithComponent(log.ComponentAggregate),
	}
}

// ImportResult describes a historical import.
type ImportResult struct {
	Skipped  bool // aggregates already existed and force was off
	Months   []string
	Warnings []Warning
}

// Import reads the Expenses sheet: month label in column A, one column per
// category named in the header row. Summary rows are ignored. Unless force
// is set, nothing happens when aggregates already exist.
func (h *HistoricalImporter) Import(ctx context.Context, r io.Reader, force bool) (*ImportResult, error) {
	if !force {
		existing, err := h.store.ListAggregates(ctx)
		if err != nil {
			return nil, fmt.Errorf("list aggregates: %w", err)
		}
		if len(existing) > 0 {
			h.logger.InfoContext(ctx, "Historical data already imported", "months", len(existing))
			return &ImportResult{Skipped: true}, nil
		}
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(HistoricalSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", HistoricalSheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %s has no monthly rows", HistoricalSheet)
	}

	columns := h.categoryColumns(rows[0])
	res := &ImportResult{}
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		label := strings.TrimSpace(row[0])
		if isSummaryRow(label) {
			continue
		}
		month, ok := parseMonthLabel(label)
		if !ok {
			continue
		}

		agg := core.NewMonthlyAggregate(month)
		for category, col := range columns {
			cell := ""
			if col < len(row) {
				cell = strings.TrimSpace(row[col])
			}
			amount := decimal.Zero
			if cell != "" {
				d, err := core.ParseAmount(cell)
				if err != nil {
					res.Warnings = append(res.Warnings, Warning{
						MonthKey: month,
						Category: category,
						Message:  fmt.Sprintf("row %d: unreadable amount %q", i+2, cell),
					})
				} else {
					amount = d.Round(2)
				}
			}
			agg.CategoryTotals[category] = amount
		}
		agg.ComputeTotals(h.categories.Lookup)
		agg.UpdatedAt = time.Now().UTC()

		if err := h.store.UpsertAggregate(ctx, agg); err != nil {
			return res, fmt.Errorf("upsert aggregate %s: %w", month, err)
		}
		res.Months = append(res.Months, month)
	}

	h.logger.InfoContext(ctx, "Historical data imported",
		log.FieldOperation, log.OpImport,
		"months", len(res.Months),
		"warnings", len(res.Warnings))
	return res, nil
}

func (h *HistoricalImporter) categoryColumns(header []string) map[string]int {
	known := make(map[string]struct{})
	for _, name := range h.categories.Names() {
		known[name] = struct{}{}
	}
	cols := make(map[string]int)
	for i, name := range header {
		if i == 0 {
			continue
		}
		name = strings.TrimSpace(name)
		if _, ok := known[name]; ok {
			cols[name] = i
		}
	}
	return cols
}

func isSummaryRow(label string) bool {
	lower := strings.ToLower(label)
	for _, m := range summaryRowMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func parseMonthLabel(label string) (string, bool) {
	for _, layout := range monthLabelLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return t.Format("2006-01"), true
		}
	}
	return "", false
}
