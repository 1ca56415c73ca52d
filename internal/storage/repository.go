package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const timestampLayout = time.RFC3339Nano

// SQLiteRepository implements Store on a single SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; concurrent recalculations queue on the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// FindByIdentity implements TransactionStore
func (r *SQLiteRepository) FindByIdentity(ctx context.Context, hash string, rank int) (*core.Transaction, error) {
	row, err := r.queries.GetTransactionByIdentity(ctx, hash, int64(rank))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction by identity: %w", err)
	}
	tx, err := transactionFromRow(row)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// InsertIfAbsent implements TransactionStore
func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, tx *core.Transaction) (bool, error) {
	id, err := r.queries.InsertTransaction(ctx, insertParams(*tx))
	if errors.Is(err, sql.ErrNoRows) {
		slog.DebugContext(ctx, "Transaction insert swallowed by uniqueness constraint",
			"identity", tx.Identity().String(),
			"storage_key", tx.StorageKey)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	tx.ID = id
	return true, nil
}

// GetTransaction implements TransactionStore
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	tx, err := transactionFromRow(row)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTransaction implements TransactionStore
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	n, err := r.queries.UpdateTransaction(ctx, UpdateTransactionParams{
		InsertTransactionParams: insertParams(tx),
		ID:                      tx.ID,
	})
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTransactionsByMonth implements TransactionStore
func (r *SQLiteRepository) ListTransactionsByMonth(ctx context.Context, month string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsByMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions by month: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// SumAmounts implements TransactionStore. Amounts are stored as text, so
// the sum is done in decimal rather than by SQLite's float SUM.
func (r *SQLiteRepository) SumAmounts(ctx context.Context, month, category string) (decimal.Decimal, error) {
	amounts, err := r.queries.ListAmountsForScope(ctx, month, category)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list amounts for %s/%s: %w", month, category, err)
	}
	sum := decimal.Zero
	for _, a := range amounts {
		d, err := decimal.NewFromString(a)
		if err != nil {
			return decimal.Zero, fmt.Errorf("stored amount %q: %w", a, err)
		}
		sum = sum.Add(d)
	}
	return sum, nil
}

// ListMonthsWithTransactions implements TransactionStore
func (r *SQLiteRepository) ListMonthsWithTransactions(ctx context.Context) ([]string, error) {
	months, err := r.queries.ListMonthsWithTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	return months, nil
}

// ListCategoriesForMonth implements TransactionStore
func (r *SQLiteRepository) ListCategoriesForMonth(ctx context.Context, month string) ([]string, error) {
	cats, err := r.queries.ListCategoriesForMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list categories for %s: %w", month, err)
	}
	return cats, nil
}

// GetAggregate implements AggregateStore
func (r *SQLiteRepository) GetAggregate(ctx context.Context, month string) (*core.MonthlyAggregate, error) {
	row, err := r.queries.GetMonthlyAggregate(ctx, month)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate %s: %w", month, err)
	}
	agg, err := r.aggregateFromRow(ctx, r.queries, row)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// UpsertAggregate implements AggregateStore. The header row and the
// category table are replaced in one transaction.
func (r *SQLiteRepository) UpsertAggregate(ctx context.Context, agg core.MonthlyAggregate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin aggregate tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.UpsertMonthlyAggregate(ctx, MonthlyAggregateRow{
		MonthKey:             agg.MonthKey,
		InvestmentTotal:      agg.InvestmentTotal.String(),
		Total:                agg.Total.String(),
		TotalMinusInvestment: agg.TotalMinusInvestment.String(),
		UpdatedAt:            formatTime(agg.UpdatedAt),
	}); err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", agg.MonthKey, err)
	}
	if err := q.DeleteCategoryTotals(ctx, agg.MonthKey); err != nil {
		return fmt.Errorf("clear category totals %s: %w", agg.MonthKey, err)
	}
	for _, name := range agg.Categories() {
		if err := q.UpsertCategoryTotal(ctx, MonthlyCategoryTotalRow{
			MonthKey: agg.MonthKey,
			Category: name,
			Total:    agg.CategoryTotals[name].String(),
		}); err != nil {
			return fmt.Errorf("upsert category total %s/%s: %w", agg.MonthKey, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit aggregate %s: %w", agg.MonthKey, err)
	}
	return nil
}

// ListAggregates implements AggregateStore
func (r *SQLiteRepository) ListAggregates(ctx context.Context) ([]core.MonthlyAggregate, error) {
	rows, err := r.queries.ListMonthlyAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	out := make([]core.MonthlyAggregate, 0, len(rows))
	for _, row := range rows {
		agg, err := r.aggregateFromRow(ctx, r.queries, row)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func (r *SQLiteRepository) aggregateFromRow(ctx context.Context, q *Queries, row MonthlyAggregateRow) (core.MonthlyAggregate, error) {
	agg := core.NewMonthlyAggregate(row.MonthKey)
	var err error
	if agg.InvestmentTotal, err = decimal.NewFromString(row.InvestmentTotal); err != nil {
		return agg, fmt.Errorf("aggregate %s investment total: %w", row.MonthKey, err)
	}
	if agg.Total, err = decimal.NewFromString(row.Total); err != nil {
		return agg, fmt.Errorf("aggregate %s total: %w", row.MonthKey, err)
	}
	if agg.TotalMinusInvestment, err = decimal.NewFromString(row.TotalMinusInvestment); err != nil {
		return agg, fmt.Errorf("aggregate %s net total: %w", row.MonthKey, err)
	}
	if agg.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return agg, fmt.Errorf("aggregate %s updated_at: %w", row.MonthKey, err)
	}

	totals, err := q.ListCategoryTotals(ctx, row.MonthKey)
	if err != nil {
		return agg, fmt.Errorf("list category totals %s: %w", row.MonthKey, err)
	}
	for _, t := range totals {
		d, err := decimal.NewFromString(t.Total)
		if err != nil {
			return agg, fmt.Errorf("category total %s/%s: %w", t.MonthKey, t.Category, err)
		}
		agg.CategoryTotals[t.Category] = d
	}
	return agg, nil
}

// ListBalancesInMonth implements BalanceStore
func (r *SQLiteRepository) ListBalancesInMonth(ctx context.Context, accountID, month string) ([]core.BalanceSnapshot, error) {
	rows, err := r.queries.ListBalancesInMonth(ctx, accountID, month)
	if err != nil {
		return nil, fmt.Errorf("list balances %s/%s: %w", accountID, month, err)
	}
	out := make([]core.BalanceSnapshot, 0, len(rows))
	for _, row := range rows {
		b, err := balanceFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// InsertBalance implements BalanceStore
func (r *SQLiteRepository) InsertBalance(ctx context.Context, b *core.BalanceSnapshot) error {
	id, err := r.queries.InsertBalanceSnapshot(ctx, balanceRow(*b))
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	b.ID = id
	return nil
}

// ReplaceBalance implements BalanceStore
func (r *SQLiteRepository) ReplaceBalance(ctx context.Context, oldID int64, b *core.BalanceSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin balance tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	n, err := q.DeleteBalanceSnapshot(ctx, oldID)
	if err != nil {
		return fmt.Errorf("delete balance %d: %w", oldID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	id, err := q.InsertBalanceSnapshot(ctx, balanceRow(*b))
	if err != nil {
		return fmt.Errorf("insert replacement balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit balance replace: %w", err)
	}
	b.ID = id

	slog.InfoContext(ctx, "Balance snapshot replaced", "old_id", oldID, "new_id", id, "account", b.AccountID)
	return nil
}

// FindUpload implements UploadStore
func (r *SQLiteRepository) FindUpload(ctx context.Context, fileHash string) (*core.UploadRecord, error) {
	row, err := r.queries.GetSourceUpload(ctx, fileHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find upload: %w", err)
	}
	at, err := parseTime(row.ImportedAt)
	if err != nil {
		return nil, fmt.Errorf("upload imported_at: %w", err)
	}
	return &core.UploadRecord{
		FileHash:   row.FileHash,
		Filename:   row.Filename,
		Source:     row.Source,
		BatchID:    row.BatchID,
		ImportedAt: at,
	}, nil
}

// RecordUpload implements UploadStore
func (r *SQLiteRepository) RecordUpload(ctx context.Context, u core.UploadRecord) error {
	if err := r.queries.InsertSourceUpload(ctx, SourceUploadRow{
		FileHash:   u.FileHash,
		Filename:   u.Filename,
		Source:     u.Source,
		BatchID:    u.BatchID,
		ImportedAt: formatTime(u.ImportedAt),
	}); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

func insertParams(tx core.Transaction) InsertTransactionParams {
	return InsertTransactionParams{
		Date:            tx.Date.String(),
		MonthKey:        tx.MonthKey(),
		Description:     tx.Description,
		Amount:          tx.Amount.String(),
		Category:        tx.Category,
		Source:          tx.Source,
		IdentityHash:    tx.IdentityHash,
		RankWithinBatch: int64(tx.Rank),
		BatchID:         tx.BatchID,
		ImportTimestamp: formatTime(tx.ImportedAt),
		StorageKey:      tx.StorageKey,
	}
}

func transactionFromRow(row TransactionRow) (core.Transaction, error) {
	date, err := core.ParseISODate(row.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d date: %w", row.ID, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d amount: %w", row.ID, err)
	}
	importedAt, err := parseTime(row.ImportTimestamp)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d import timestamp: %w", row.ID, err)
	}
	return core.Transaction{
		ID:           row.ID,
		Date:         date,
		Description:  row.Description,
		Amount:       amount,
		Category:     row.Category,
		Source:       row.Source,
		IdentityHash: row.IdentityHash,
		Rank:         int(row.RankWithinBatch),
		BatchID:      row.BatchID,
		ImportedAt:   importedAt,
		StorageKey:   row.StorageKey,
	}, nil
}

func balanceRow(b core.BalanceSnapshot) BalanceSnapshotRow {
	return BalanceSnapshotRow{
		AccountID:   b.AccountID,
		BalanceDate: b.Date.String(),
		MonthKey:    b.Date.MonthKey(),
		Amount:      b.Amount.String(),
		Source:      b.Source,
		Confidence:  b.Confidence.String(),
		Notes:       b.Notes,
		CreatedAt:   formatTime(b.CreatedAt),
	}
}

func balanceFromRow(row BalanceSnapshotRow) (core.BalanceSnapshot, error) {
	date, err := core.ParseISODate(row.BalanceDate)
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("balance %d date: %w", row.ID, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("balance %d amount: %w", row.ID, err)
	}
	confidence, err := decimal.NewFromString(row.Confidence)
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("balance %d confidence: %w", row.ID, err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("balance %d created_at: %w", row.ID, err)
	}
	return core.BalanceSnapshot{
		ID:         row.ID,
		AccountID:  row.AccountID,
		Date:       date,
		Amount:     amount,
		Source:     row.Source,
		Confidence: confidence,
		Notes:      row.Notes,
		CreatedAt:  createdAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
