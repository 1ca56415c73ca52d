// Package postgres implements storage.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn and applies the embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	if version, dirty, err := m.Version(); err == nil {
		slog.Debug("Postgres schema ready", "version", version, "dirty", dirty)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const txColumns = `id, date, description, amount::text, category, source,
       identity_hash, rank_within_batch, batch_id, import_timestamp, storage_key`

func scanTx(row pgx.Row) (core.Transaction, error) {
	var (
		t      core.Transaction
		date   time.Time
		amount string
	)
	err := row.Scan(&t.ID, &date, &t.Description, &amount, &t.Category, &t.Source,
		&t.IdentityHash, &t.Rank, &t.BatchID, &t.ImportedAt, &t.StorageKey)
	if err != nil {
		return t, err
	}
	t.Date = core.DateOf(date)
	t.ImportedAt = t.ImportedAt.UTC()
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("transaction %d amount: %w", t.ID, err)
	}
	return t, nil
}

func (s *Store) FindByIdentity(ctx context.Context, hash string, rank int) (*core.Transaction, error) {
	t, err := scanTx(s.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE identity_hash = $1 AND rank_within_batch = $2`,
		hash, rank))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction by identity: %w", err)
	}
	return &t, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, tx *core.Transaction) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (date, month_key, description, amount, category, source,
			identity_hash, rank_within_batch, batch_id, import_timestamp, storage_key)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		tx.Date.Time, tx.MonthKey(), tx.Description, tx.Amount.String(), tx.Category, tx.Source,
		tx.IdentityHash, tx.Rank, tx.BatchID, tx.ImportedAt, tx.StorageKey,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	tx.ID = id
	return true, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	t, err := scanTx(s.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return &t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET date = $1, month_key = $2, description = $3, amount = $4::numeric, category = $5,
		    source = $6, identity_hash = $7, rank_within_batch = $8, batch_id = $9,
		    import_timestamp = $10, storage_key = $11
		WHERE id = $12`,
		tx.Date.Time, tx.MonthKey(), tx.Description, tx.Amount.String(), tx.Category, tx.Source,
		tx.IdentityHash, tx.Rank, tx.BatchID, tx.ImportedAt, tx.StorageKey, tx.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListTransactionsByMonth(ctx context.Context, month string) ([]core.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE month_key = $1 ORDER BY date DESC, id DESC`, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions by month: %w", err)
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumAmounts sums in NUMERIC on the server; the text cast keeps it exact.
func (s *Store) SumAmounts(ctx context.Context, month, category string) (decimal.Decimal, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM transactions WHERE month_key = $1 AND category = $2`,
		month, category).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum amounts for %s/%s: %w", month, category, err)
	}
	return decimal.NewFromString(sum)
}

func (s *Store) ListMonthsWithTransactions(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, `SELECT DISTINCT month_key FROM transactions ORDER BY month_key`)
}

func (s *Store) ListCategoriesForMonth(ctx context.Context, month string) ([]string, error) {
	return s.listStrings(ctx,
		`SELECT DISTINCT category FROM transactions WHERE month_key = $1 ORDER BY category`, month)
}

func (s *Store) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}
	return out, nil
}

func (s *Store) GetAggregate(ctx context.Context, month string) (*core.MonthlyAggregate, error) {
	aggs, err := s.loadAggregates(ctx, `WHERE month_key = $1`, month)
	if err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return nil, nil
	}
	return &aggs[0], nil
}

func (s *Store) ListAggregates(ctx context.Context) ([]core.MonthlyAggregate, error) {
	return s.loadAggregates(ctx, ``)
}

func (s *Store) loadAggregates(ctx context.Context, where string, args ...any) ([]core.MonthlyAggregate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT month_key, investment_total::text, total::text, total_minus_investment::text, updated_at
		FROM monthly_aggregates `+where+` ORDER BY month_key`, args...)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	var out []core.MonthlyAggregate
	for rows.Next() {
		var inv, total, net string
		var agg core.MonthlyAggregate
		if err := rows.Scan(&agg.MonthKey, &inv, &total, &net, &agg.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		agg.CategoryTotals = make(map[string]decimal.Decimal)
		vals, err := parseDecimals(inv, total, net)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("aggregate %s totals: %w", agg.MonthKey, err)
		}
		agg.InvestmentTotal, agg.Total, agg.TotalMinusInvestment = vals[0], vals[1], vals[2]
		agg.UpdatedAt = agg.UpdatedAt.UTC()
		out = append(out, agg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}

	for i := range out {
		trows, err := s.pool.Query(ctx,
			`SELECT category, total::text FROM monthly_category_totals WHERE month_key = $1`, out[i].MonthKey)
		if err != nil {
			return nil, fmt.Errorf("query category totals %s: %w", out[i].MonthKey, err)
		}
		for trows.Next() {
			var name, total string
			if err := trows.Scan(&name, &total); err != nil {
				trows.Close()
				return nil, fmt.Errorf("scan category total: %w", err)
			}
			d, err := decimal.NewFromString(total)
			if err != nil {
				trows.Close()
				return nil, fmt.Errorf("category total %s/%s: %w", out[i].MonthKey, name, err)
			}
			out[i].CategoryTotals[name] = d
		}
		trows.Close()
		if err := trows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) UpsertAggregate(ctx context.Context, agg core.MonthlyAggregate) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO monthly_aggregates (month_key, investment_total, total, total_minus_investment, updated_at)
			VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5)
			ON CONFLICT (month_key) DO UPDATE SET
				investment_total = EXCLUDED.investment_total,
				total = EXCLUDED.total,
				total_minus_investment = EXCLUDED.total_minus_investment,
				updated_at = EXCLUDED.updated_at`,
			agg.MonthKey, agg.InvestmentTotal.String(), agg.Total.String(),
			agg.TotalMinusInvestment.String(), agg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert aggregate %s: %w", agg.MonthKey, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM monthly_category_totals WHERE month_key = $1`, agg.MonthKey); err != nil {
			return fmt.Errorf("clear category totals %s: %w", agg.MonthKey, err)
		}

		batch := &pgx.Batch{}
		for _, name := range agg.Categories() {
			batch.Queue(`INSERT INTO monthly_category_totals (month_key, category, total) VALUES ($1, $2, $3::numeric)`,
				agg.MonthKey, name, agg.CategoryTotals[name].String())
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert category totals %s: %w", agg.MonthKey, err)
		}
		return nil
	})
}

const balanceColumns = `id, account_id, balance_date, amount::text, source, confidence::text, notes, created_at`

func (s *Store) ListBalancesInMonth(ctx context.Context, accountID, month string) ([]core.BalanceSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+balanceColumns+`
		FROM balance_snapshots WHERE account_id = $1 AND month_key = $2
		ORDER BY balance_date, id`, accountID, month)
	if err != nil {
		return nil, fmt.Errorf("list balances %s/%s: %w", accountID, month, err)
	}
	defer rows.Close()
	var out []core.BalanceSnapshot
	for rows.Next() {
		var (
			b              core.BalanceSnapshot
			date           time.Time
			amount, confid string
		)
		if err := rows.Scan(&b.ID, &b.AccountID, &date, &amount, &b.Source, &confid, &b.Notes, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		b.Date = core.DateOf(date)
		b.CreatedAt = b.CreatedAt.UTC()
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("balance %d amount: %w", b.ID, err)
		}
		if b.Confidence, err = decimal.NewFromString(confid); err != nil {
			return nil, fmt.Errorf("balance %d confidence: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const insertBalance = `
	INSERT INTO balance_snapshots (account_id, balance_date, month_key, amount, source, confidence, notes, created_at)
	VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7, $8)
	RETURNING id`

func balanceArgs(b *core.BalanceSnapshot) []any {
	return []any{b.AccountID, b.Date.Time, b.Date.MonthKey(), b.Amount.String(), b.Source,
		b.Confidence.String(), b.Notes, b.CreatedAt}
}

func (s *Store) InsertBalance(ctx context.Context, b *core.BalanceSnapshot) error {
	if err := s.pool.QueryRow(ctx, insertBalance, balanceArgs(b)...).Scan(&b.ID); err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

func (s *Store) ReplaceBalance(ctx context.Context, oldID int64, b *core.BalanceSnapshot) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM balance_snapshots WHERE id = $1`, oldID)
		if err != nil {
			return fmt.Errorf("delete balance %d: %w", oldID, err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		if err := tx.QueryRow(ctx, insertBalance, balanceArgs(b)...).Scan(&b.ID); err != nil {
			return fmt.Errorf("insert replacement balance: %w", err)
		}
		return nil
	})
}

func (s *Store) FindUpload(ctx context.Context, fileHash string) (*core.UploadRecord, error) {
	var u core.UploadRecord
	err := s.pool.QueryRow(ctx,
		`SELECT file_hash, filename, source, batch_id, imported_at FROM source_uploads WHERE file_hash = $1`,
		fileHash).Scan(&u.FileHash, &u.Filename, &u.Source, &u.BatchID, &u.ImportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find upload: %w", err)
	}
	u.ImportedAt = u.ImportedAt.UTC()
	return &u, nil
}

func (s *Store) RecordUpload(ctx context.Context, u core.UploadRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_uploads (file_hash, filename, source, batch_id, imported_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_hash) DO NOTHING`,
		u.FileHash, u.Filename, u.Source, u.BatchID, u.ImportedAt)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

func parseDecimals(in ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(in))
	for i, s := range in {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
