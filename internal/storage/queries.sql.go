package storage

import (
	"context"
)

const transactionColumns = `id, date, month_key, description, amount, category, source,
       identity_hash, rank_within_batch, batch_id, import_timestamp, storage_key`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s rowScanner) (TransactionRow, error) {
	var i TransactionRow
	err := s.Scan(
		&i.ID,
		&i.Date,
		&i.MonthKey,
		&i.Description,
		&i.Amount,
		&i.Category,
		&i.Source,
		&i.IdentityHash,
		&i.RankWithinBatch,
		&i.BatchID,
		&i.ImportTimestamp,
		&i.StorageKey,
	)
	return i, err
}

const getTransactionByIdentity = `-- name: GetTransactionByIdentity :one
SELECT ` + transactionColumns + `
FROM transactions
WHERE identity_hash = ? AND rank_within_batch = ?
LIMIT 1
`

func (q *Queries) GetTransactionByIdentity(ctx context.Context, identityHash string, rank int64) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, getTransactionByIdentity, identityHash, rank)
	return scanTransaction(row)
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + `
FROM transactions
WHERE id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	return scanTransaction(row)
}

const insertTransaction = `-- name: InsertTransaction :one
INSERT INTO transactions (
    date, month_key, description, amount, category, source,
    identity_hash, rank_within_batch, batch_id, import_timestamp, storage_key
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
RETURNING id
`

type InsertTransactionParams struct {
	Date            string
	MonthKey        string
	Description     string
	Amount          string
	Category        string
	Source          string
	IdentityHash    string
	RankWithinBatch int64
	BatchID         string
	ImportTimestamp string
	StorageKey      string
}

// InsertTransaction returns sql.ErrNoRows when a uniqueness constraint
// swallowed the row.
func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertTransaction,
		arg.Date,
		arg.MonthKey,
		arg.Description,
		arg.Amount,
		arg.Category,
		arg.Source,
		arg.IdentityHash,
		arg.RankWithinBatch,
		arg.BatchID,
		arg.ImportTimestamp,
		arg.StorageKey,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const updateTransaction = `-- name: UpdateTransaction :execrows
UPDATE transactions
SET date = ?, month_key = ?, description = ?, amount = ?, category = ?, source = ?,
    identity_hash = ?, rank_within_batch = ?, batch_id = ?, import_timestamp = ?, storage_key = ?
WHERE id = ?
`

type UpdateTransactionParams struct {
	InsertTransactionParams
	ID int64
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateTransaction,
		arg.Date,
		arg.MonthKey,
		arg.Description,
		arg.Amount,
		arg.Category,
		arg.Source,
		arg.IdentityHash,
		arg.RankWithinBatch,
		arg.BatchID,
		arg.ImportTimestamp,
		arg.StorageKey,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listTransactionsByMonth = `-- name: ListTransactionsByMonth :many
SELECT ` + transactionColumns + `
FROM transactions
WHERE month_key = ?
ORDER BY date DESC, id DESC
`

func (q *Queries) ListTransactionsByMonth(ctx context.Context, monthKey string) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByMonth, monthKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listAmountsForScope = `-- name: ListAmountsForScope :many
SELECT amount FROM transactions
WHERE month_key = ? AND category = ?
`

func (q *Queries) ListAmountsForScope(ctx context.Context, monthKey, category string) ([]string, error) {
	return q.listStrings(ctx, listAmountsForScope, monthKey, category)
}

const listMonthsWithTransactions = `-- name: ListMonthsWithTransactions :many
SELECT DISTINCT month_key FROM transactions ORDER BY month_key
`

func (q *Queries) ListMonthsWithTransactions(ctx context.Context) ([]string, error) {
	return q.listStrings(ctx, listMonthsWithTransactions)
}

const listCategoriesForMonth = `-- name: ListCategoriesForMonth :many
SELECT DISTINCT category FROM transactions WHERE month_key = ? ORDER BY category
`

func (q *Queries) ListCategoriesForMonth(ctx context.Context, monthKey string) ([]string, error) {
	return q.listStrings(ctx, listCategoriesForMonth, monthKey)
}

func (q *Queries) listStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMonthlyAggregate = `-- name: GetMonthlyAggregate :one
SELECT month_key, investment_total, total, total_minus_investment, updated_at
FROM monthly_aggregates
WHERE month_key = ?
`

func (q *Queries) GetMonthlyAggregate(ctx context.Context, monthKey string) (MonthlyAggregateRow, error) {
	row := q.db.QueryRowContext(ctx, getMonthlyAggregate, monthKey)
	var i MonthlyAggregateRow
	err := row.Scan(&i.MonthKey, &i.InvestmentTotal, &i.Total, &i.TotalMinusInvestment, &i.UpdatedAt)
	return i, err
}

const listMonthlyAggregates = `-- name: ListMonthlyAggregates :many
SELECT month_key, investment_total, total, total_minus_investment, updated_at
FROM monthly_aggregates
ORDER BY month_key
`

func (q *Queries) ListMonthlyAggregates(ctx context.Context) ([]MonthlyAggregateRow, error) {
	rows, err := q.db.QueryContext(ctx, listMonthlyAggregates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MonthlyAggregateRow
	for rows.Next() {
		var i MonthlyAggregateRow
		if err := rows.Scan(&i.MonthKey, &i.InvestmentTotal, &i.Total, &i.TotalMinusInvestment, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertMonthlyAggregate = `-- name: UpsertMonthlyAggregate :exec
INSERT INTO monthly_aggregates (month_key, investment_total, total, total_minus_investment, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (month_key) DO UPDATE SET
    investment_total = excluded.investment_total,
    total = excluded.total,
    total_minus_investment = excluded.total_minus_investment,
    updated_at = excluded.updated_at
`

func (q *Queries) UpsertMonthlyAggregate(ctx context.Context, arg MonthlyAggregateRow) error {
	_, err := q.db.ExecContext(ctx, upsertMonthlyAggregate,
		arg.MonthKey,
		arg.InvestmentTotal,
		arg.Total,
		arg.TotalMinusInvestment,
		arg.UpdatedAt,
	)
	return err
}

const listCategoryTotals = `-- name: ListCategoryTotals :many
SELECT month_key, category, total FROM monthly_category_totals
WHERE month_key = ?
ORDER BY category
`

func (q *Queries) ListCategoryTotals(ctx context.Context, monthKey string) ([]MonthlyCategoryTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategoryTotals, monthKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MonthlyCategoryTotalRow
	for rows.Next() {
		var i MonthlyCategoryTotalRow
		if err := rows.Scan(&i.MonthKey, &i.Category, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertCategoryTotal = `-- name: UpsertCategoryTotal :exec
INSERT INTO monthly_category_totals (month_key, category, total)
VALUES (?, ?, ?)
ON CONFLICT (month_key, category) DO UPDATE SET total = excluded.total
`

func (q *Queries) UpsertCategoryTotal(ctx context.Context, arg MonthlyCategoryTotalRow) error {
	_, err := q.db.ExecContext(ctx, upsertCategoryTotal, arg.MonthKey, arg.Category, arg.Total)
	return err
}

const deleteCategoryTotals = `-- name: DeleteCategoryTotals :exec
DELETE FROM monthly_category_totals WHERE month_key = ?
`

func (q *Queries) DeleteCategoryTotals(ctx context.Context, monthKey string) error {
	_, err := q.db.ExecContext(ctx, deleteCategoryTotals, monthKey)
	return err
}

const listBalancesInMonth = `-- name: ListBalancesInMonth :many
SELECT id, account_id, balance_date, month_key, amount, source, confidence, notes, created_at
FROM balance_snapshots
WHERE account_id = ? AND month_key = ?
ORDER BY balance_date, id
`

func (q *Queries) ListBalancesInMonth(ctx context.Context, accountID, monthKey string) ([]BalanceSnapshotRow, error) {
	rows, err := q.db.QueryContext(ctx, listBalancesInMonth, accountID, monthKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BalanceSnapshotRow
	for rows.Next() {
		var i BalanceSnapshotRow
		if err := rows.Scan(
			&i.ID,
			&i.AccountID,
			&i.BalanceDate,
			&i.MonthKey,
			&i.Amount,
			&i.Source,
			&i.Confidence,
			&i.Notes,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertBalanceSnapshot = `-- name: InsertBalanceSnapshot :one
INSERT INTO balance_snapshots (account_id, balance_date, month_key, amount, source, confidence, notes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

func (q *Queries) InsertBalanceSnapshot(ctx context.Context, arg BalanceSnapshotRow) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertBalanceSnapshot,
		arg.AccountID,
		arg.BalanceDate,
		arg.MonthKey,
		arg.Amount,
		arg.Source,
		arg.Confidence,
		arg.Notes,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const deleteBalanceSnapshot = `-- name: DeleteBalanceSnapshot :execrows
DELETE FROM balance_snapshots WHERE id = ?
`

func (q *Queries) DeleteBalanceSnapshot(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteBalanceSnapshot, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getSourceUpload = `-- name: GetSourceUpload :one
SELECT file_hash, filename, source, batch_id, imported_at FROM source_uploads WHERE file_hash = ?
`

func (q *Queries) GetSourceUpload(ctx context.Context, fileHash string) (SourceUploadRow, error) {
	row := q.db.QueryRowContext(ctx, getSourceUpload, fileHash)
	var i SourceUploadRow
	err := row.Scan(&i.FileHash, &i.Filename, &i.Source, &i.BatchID, &i.ImportedAt)
	return i, err
}

const insertSourceUpload = `-- name: InsertSourceUpload :exec
INSERT INTO source_uploads (file_hash, filename, source, batch_id, imported_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (file_hash) DO NOTHING
`

func (q *Queries) InsertSourceUpload(ctx context.Context, arg SourceUploadRow) error {
	_, err := q.db.ExecContext(ctx, insertSourceUpload, arg.FileHash, arg.Filename, arg.Source, arg.BatchID, arg.ImportedAt)
	return err
}
