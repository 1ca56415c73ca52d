package storage

import (
	"context"
	"errors"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a record addressed by ID does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an update would violate a uniqueness key.
	ErrConflict = errors.New("uniqueness conflict")
)

// Ports implemented by every persistence backend.
type (
	TransactionStore interface {
		// FindByIdentity returns the record stored under (hash, rank), or nil.
		FindByIdentity(ctx context.Context, hash string, rank int) (*core.Transaction, error)
		// InsertIfAbsent stores tx and sets its ID. It returns false without
		// error when a uniqueness constraint rejects the row.
		InsertIfAbsent(ctx context.Context, tx *core.Transaction) (bool, error)
		GetTransaction(ctx context.Context, id int64) (*core.Transaction, error)
		// UpdateTransaction overwrites the record with tx.ID. ErrConflict when
		// the new identity collides with another record.
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		ListTransactionsByMonth(ctx context.Context, month string) ([]core.Transaction, error)
		SumAmounts(ctx context.Context, month, category string) (decimal.Decimal, error)
		ListMonthsWithTransactions(ctx context.Context) ([]string, error)
		ListCategoriesForMonth(ctx context.Context, month string) ([]string, error)
	}

	AggregateStore interface {
		// GetAggregate returns nil when the month has no aggregate yet.
		GetAggregate(ctx context.Context, month string) (*core.MonthlyAggregate, error)
		// UpsertAggregate inserts or replaces the aggregate keyed by month.
		UpsertAggregate(ctx context.Context, agg core.MonthlyAggregate) error
		ListAggregates(ctx context.Context) ([]core.MonthlyAggregate, error)
	}

	BalanceStore interface {
		ListBalancesInMonth(ctx context.Context, accountID, month string) ([]core.BalanceSnapshot, error)
		InsertBalance(ctx context.Context, b *core.BalanceSnapshot) error
		// ReplaceBalance removes oldID and stores b in one step.
		ReplaceBalance(ctx context.Context, oldID int64, b *core.BalanceSnapshot) error
	}

	UploadStore interface {
		FindUpload(ctx context.Context, fileHash string) (*core.UploadRecord, error)
		RecordUpload(ctx context.Context, u core.UploadRecord) error
	}

	Store interface {
		TransactionStore
		AggregateStore
		BalanceStore
		UploadStore
		Close() error
	}
)
