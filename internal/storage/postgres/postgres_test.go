//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_InsertIfAbsentAndSum(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Random hashes keep reruns against a shared database independent.
	hash := uuid.NewString()[:32]
	month := "1999-01"
	category := "Test-" + uuid.NewString()[:8]

	mk := func(rank int, amount string) *core.Transaction {
		return &core.Transaction{
			Date:         core.NewDate(1999, 1, 5),
			Description:  "INTEGRATION",
			Amount:       decimal.RequireFromString(amount),
			Category:     category,
			Source:       "chase",
			IdentityHash: hash,
			Rank:         rank,
			BatchID:      "b",
			ImportedAt:   time.Now().UTC().Truncate(time.Microsecond),
			StorageKey:   uuid.NewString(),
		}
	}

	first := mk(1, "10.25")
	ok, err := s.InsertIfAbsent(ctx, first)
	if err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	ok, err = s.InsertIfAbsent(ctx, mk(1, "10.25"))
	if err != nil || ok {
		t.Fatalf("duplicate identity: ok=%v err=%v", ok, err)
	}
	if _, err := s.InsertIfAbsent(ctx, mk(2, "-0.25")); err != nil {
		t.Fatal(err)
	}

	sum, err := s.SumAmounts(ctx, month, category)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(decimal.NewFromInt(10)) {
		t.Errorf("sum = %s, want 10", sum)
	}

	got, err := s.FindByIdentity(ctx, hash, 1)
	if err != nil || got == nil {
		t.Fatalf("FindByIdentity: %v %v", got, err)
	}
	if !got.ImportedAt.Equal(first.ImportedAt) {
		t.Errorf("imported_at = %v, want %v", got.ImportedAt, first.ImportedAt)
	}
}

func TestStore_AggregateUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	agg := core.NewMonthlyAggregate("1999-02")
	agg.CategoryTotals["Dining"] = decimal.RequireFromString("1.50")
	agg.Total = decimal.RequireFromString("1.50")
	agg.TotalMinusInvestment = agg.Total
	agg.UpdatedAt = time.Now().UTC()
	if err := s.UpsertAggregate(ctx, agg); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetAggregate(ctx, "1999-02")
	if err != nil || got == nil {
		t.Fatalf("GetAggregate: %v %v", got, err)
	}
	if !got.CategoryTotals["Dining"].Equal(agg.CategoryTotals["Dining"]) {
		t.Errorf("category totals = %v", got.CategoryTotals)
	}
}
