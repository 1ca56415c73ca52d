package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// RowResult is the fate of a single input row.
type RowResult struct {
	Line     int
	Outcome  Outcome
	Identity core.Identity
	TxID     int64
	Err      error
}

// Result summarizes one Ingest call. Partial success is normal.
type Result struct {
	BatchID    string
	ImportedAt time.Time
	Accepted   int
	Duplicates []core.Identity
	Rejected   []RowResult
	Failed     []RowResult
	Scopes     core.ScopeSet
	Rows       []RowResult
}

func (r *Result) record(rr RowResult) {
	r.Rows = append(r.Rows, rr)
	switch rr.Outcome {
	case OutcomeAccepted:
		r.Accepted++
	case OutcomeDuplicate:
		r.Duplicates = append(r.Duplicates, rr.Identity)
	case OutcomeRejected:
		r.Rejected = append(r.Rejected, rr)
	case OutcomeFailed:
		r.Failed = append(r.Failed, rr)
	}
}

// Ingestor persists batches row by row.
type Ingestor struct {
	store      storage.TransactionStore
	classifier *Classifier
	logger     *log.Logger
}

func NewIngestor(store storage.TransactionStore, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.Default()
	}
	return &Ingestor{
		store:      store,
		classifier: NewClassifier(store),
		logger:     logger.WithComponent(log.ComponentIngest),
	}
}

// Ingest processes b strictly in row order. Each row's classify and insert
// is its own unit: a failing row is reported and the next row proceeds.
func (in *Ingestor) Ingest(ctx context.Context, b Batch) (*Result, error) {
	if b.ID == "" || b.ImportedAt.IsZero() {
		return nil, errors.New("batch must carry an ID and import time")
	}

	res := &Result{
		BatchID:    b.ID,
		ImportedAt: b.ImportedAt,
		Scopes:     core.NewScopeSet(),
	}

	ranked, rejected := RankBatch(b)
	for _, rr := range rejected {
		in.logger.WarnContext(ctx, "Row rejected",
			log.FieldBatchID, b.ID, log.FieldLine, rr.Line, log.FieldError, rr.Err)
		res.record(rr)
	}

	for _, row := range ranked {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.record(in.ingestRow(ctx, b, row, res.Scopes))
	}

	in.logger.WithFields(log.NewFields().
		WithOperation(log.OpIngest).
		WithBatch(b.ID, b.Source).
		WithIngestCounts(res.Accepted, len(res.Duplicates), len(res.Rejected), len(res.Failed), res.Scopes.Len()),
	).InfoContext(ctx, "Batch ingested")
	return res, nil
}

func (in *Ingestor) ingestRow(ctx context.Context, b Batch, row RankedRow, scopes core.ScopeSet) RowResult {
	rr := RowResult{Line: row.Line, Identity: row.Identity}

	dup, err := in.classifier.IsDuplicate(ctx, row.Identity.Hash, row.Identity.Rank, b.ImportedAt)
	if err != nil {
		return in.failRow(ctx, b, rr, err)
	}
	if dup {
		rr.Outcome = OutcomeDuplicate
		return rr
	}

	tx := row.Transaction(b)
	if err := tx.Validate(); err != nil {
		rr.Outcome = OutcomeRejected
		rr.Err = fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, row.Line, err)
		return rr
	}

	inserted, err := in.store.InsertIfAbsent(ctx, &tx)
	if err != nil {
		return in.failRow(ctx, b, rr, err)
	}
	if !inserted {
		// Lost a race with a concurrent writer, or re-running this very batch.
		in.logger.DebugContext(ctx, "Insert conflict treated as duplicate",
			log.FieldBatchID, b.ID, log.FieldIdentity, row.Identity.String())
		rr.Outcome = OutcomeDuplicate
		return rr
	}

	scopes.Add(tx.MonthKey(), tx.Category)
	rr.Outcome = OutcomeAccepted
	rr.TxID = tx.ID
	return rr
}

func (in *Ingestor) failRow(ctx context.Context, b Batch, rr RowResult, err error) RowResult {
	in.logger.ErrorContext(ctx, "Row failed to persist",
		log.FieldBatchID, b.ID,
		log.FieldLine, rr.Line,
		log.FieldIdentity, rr.Identity.String(),
		log.FieldError, err)
	rr.Outcome = OutcomeFailed
	rr.Err = err
	return rr
}

// Edit is the set of fields a user may change on a stored transaction.
// Nil fields are left untouched.
type Edit struct {
	Date        *core.Date
	Description *string
	Amount      *string
	Category    *string
}

// maxEditAttempts bounds rank retries when concurrent writers take the
// rank an edit picked.
const maxEditAttempts = 3

// Edit rewrites a stored transaction. When date, description, amount and
// source are unchanged the identity is kept, so the row keeps its rank and
// batch and a re-upload of the same statement still sees it as a
// duplicate. Otherwise the identity hash is regenerated and the row becomes
// a manual entry (no batch) holding the next free rank of the new hash.
// The returned scopes cover both the old and new placement.
func (in *Ingestor) Edit(ctx context.Context, id int64, e Edit) (*core.Transaction, core.ScopeSet, error) {
	old, err := in.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load transaction %d: %w", id, err)
	}

	c := Canonical{
		Date:        old.Date,
		Description: old.Description,
		Amount:      old.Amount,
		Source:      old.Source,
		Category:    old.Category,
	}
	if e.Date != nil {
		c.Date = *e.Date
	}
	if e.Description != nil {
		c.Description = strings.TrimSpace(*e.Description)
	}
	if e.Amount != nil {
		amount, err := core.ParseAmount(*e.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: amount %q", ErrMalformedRecord, *e.Amount)
		}
		c.Amount = amount
	}
	if e.Category != nil {
		c.Category = strings.TrimSpace(*e.Category)
	}

	updated := *old
	updated.Date = c.Date
	updated.Description = c.Description
	updated.Amount = c.Amount
	updated.Category = c.Category
	if err := updated.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	hash := IdentityHash(c)
	if hash == old.IdentityHash {
		if err := in.store.UpdateTransaction(ctx, updated); err != nil {
			return nil, nil, fmt.Errorf("update transaction %d: %w", id, err)
		}
	} else {
		updated.IdentityHash = hash
		updated.BatchID = ""
		updated.ImportedAt = time.Now().UTC().Truncate(time.Microsecond)
		if err := in.rehome(ctx, &updated); err != nil {
			return nil, nil, fmt.Errorf("update transaction %d: %w", id, err)
		}
	}

	scopes := core.NewScopeSet()
	scopes.Add(old.MonthKey(), old.Category)
	scopes.Add(updated.MonthKey(), updated.Category)

	in.logger.InfoContext(ctx, "Transaction edited",
		log.FieldOperation, log.OpEdit,
		"id", id,
		"identity_changed", hash != old.IdentityHash,
		log.FieldIdentity, updated.Identity().String())
	return &updated, scopes, nil
}

// rehome stores tx under the lowest rank of its hash not held by another
// row, retrying when a concurrent writer claims that rank first.
func (in *Ingestor) rehome(ctx context.Context, tx *core.Transaction) error {
	var err error
	for attempt := 0; attempt < maxEditAttempts; attempt++ {
		rank, ferr := in.freeRank(ctx, tx.IdentityHash, tx.ID)
		if ferr != nil {
			return ferr
		}
		tx.Rank = rank
		tx.StorageKey = StorageKey(tx.IdentityHash, rank, tx.BatchID)
		if err = in.store.UpdateTransaction(ctx, *tx); !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return err
}

func (in *Ingestor) freeRank(ctx context.Context, hash string, self int64) (int, error) {
	for rank := 1; ; rank++ {
		existing, err := in.store.FindByIdentity(ctx, hash, rank)
		if err != nil {
			return 0, fmt.Errorf("find %s#%d: %w", hash, rank, err)
		}
		if existing == nil || existing.ID == self {
			return rank, nil
		}
	}
}
