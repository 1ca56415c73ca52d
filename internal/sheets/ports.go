// Package sheets declares the outbound ports used to mirror monthly
// aggregates into a spreadsheet.
package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Column headers shared by every mirror layout.
const (
	HeaderMonth                = "Month"
	HeaderInvestments          = "Investments"
	HeaderTotal                = "Total"
	HeaderTotalMinusInvestment = "Total - Investments"
)

// Ports for outbound adapters.
type (
	// AggregateWriter upserts one row per month.
	AggregateWriter interface {
		WriteAggregates(ctx context.Context, aggs []core.MonthlyAggregate) error
	}

	// AggregateReader reads back a mirrored month. ok is false when the month
	// has no row.
	AggregateReader interface {
		ReadAggregate(ctx context.Context, month string) (agg core.MonthlyAggregate, ok bool, err error)
	}

	// AggregateMirror is the full mirror port.
	AggregateMirror interface {
		AggregateWriter
		AggregateReader
	}
)
