package ingest

import (
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
)

// Batch is one upload event. Rows keep file order.
type Batch struct {
	ID         string
	Source     string
	ImportedAt time.Time
	Rows       []core.RawRow
}

// NewBatch stamps rows with a fresh batch ID and import time. The time is
// truncated to microseconds so it survives a round trip through Postgres.
func NewBatch(source string, rows []core.RawRow) Batch {
	return Batch{
		ID:         uuid.NewString(),
		Source:     source,
		ImportedAt: time.Now().UTC().Truncate(time.Microsecond),
		Rows:       rows,
	}
}

// RankedRow is a canonical row carrying its full identity.
type RankedRow struct {
	Line      int
	Canonical Canonical
	Identity  core.Identity
}

// RankBatch canonicalizes rows in order and assigns each identity hash
// ranks 1, 2, 3... in first-seen order. Malformed rows are returned
// separately and take no rank.
func RankBatch(b Batch) ([]RankedRow, []RowResult) {
	ranked := make([]RankedRow, 0, len(b.Rows))
	var rejected []RowResult
	seen := make(map[string]int)

	for _, row := range b.Rows {
		if row.Source == "" {
			row.Source = b.Source
		}
		c, err := Canonicalize(row)
		if err != nil {
			rejected = append(rejected, RowResult{Line: row.Line, Outcome: OutcomeRejected, Err: err})
			continue
		}
		hash := IdentityHash(c)
		seen[hash]++
		ranked = append(ranked, RankedRow{
			Line:      row.Line,
			Canonical: c,
			Identity:  core.Identity{Hash: hash, Rank: seen[hash]},
		})
	}
	return ranked, rejected
}

// Transaction builds the record to persist for a ranked row of batch b.
func (r RankedRow) Transaction(b Batch) core.Transaction {
	return core.Transaction{
		Date:         r.Canonical.Date,
		Description:  r.Canonical.Description,
		Amount:       r.Canonical.Amount,
		Category:     r.Canonical.Category,
		Source:       r.Canonical.Source,
		IdentityHash: r.Identity.Hash,
		Rank:         r.Identity.Rank,
		BatchID:      b.ID,
		ImportedAt:   b.ImportedAt,
		StorageKey:   StorageKey(r.Identity.Hash, r.Identity.Rank, b.ID),
	}
}
