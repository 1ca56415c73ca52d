package balance

import (
	"context"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func put(t *testing.T, s *memory.Store, date core.Date, amount string) core.BalanceSnapshot {
	t.Helper()
	b := core.BalanceSnapshot{AccountID: "acct", Date: date, Amount: d(amount), Source: "manual", Confidence: d("1")}
	if err := s.InsertBalance(context.Background(), &b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestResolver_ClassificationTable(t *testing.T) {
	tests := []struct {
		name           string
		existingDate   core.Date
		existingAmount string
		newDate        core.Date
		newAmount      string
		class          core.Classification
		rec            core.Recommendation
		similarity     string
	}{
		{"exact duplicate", core.NewDate(2024, 3, 15), "1000.00", core.NewDate(2024, 3, 15), "1000.00",
			core.ClassExactDuplicate, core.RecommendBlockSave, "100"},
		{"same date within 1%", core.NewDate(2024, 3, 15), "1000", core.NewDate(2024, 3, 15), "1005",
			core.ClassExactDuplicate, core.RecommendBlockSave, "99.5"},
		{"same date different amount", core.NewDate(2024, 3, 15), "1000.00", core.NewDate(2024, 3, 15), "1050.00",
			core.ClassSameDateDifferent, core.RecommendRequireConfirmation, "95"},
		{"similar monthly", core.NewDate(2024, 3, 1), "1000", core.NewDate(2024, 3, 28), "1005",
			core.ClassSimilarMonthlyBalance, core.RecommendWarnUser, "99.5"},
		{"monthly update", core.NewDate(2024, 3, 1), "1000", core.NewDate(2024, 3, 28), "1040",
			core.ClassMonthlyUpdate, core.RecommendSuggestUpdate, "96"},
		{"monthly update at boundary", core.NewDate(2024, 3, 1), "1000", core.NewDate(2024, 3, 28), "950",
			core.ClassMonthlyUpdate, core.RecommendSuggestUpdate, "95"},
		{"monthly large difference", core.NewDate(2024, 3, 1), "1000", core.NewDate(2024, 3, 28), "1300",
			core.ClassMonthlyLargeDifference, core.RecommendManualReview, "70"},
		{"both zero", core.NewDate(2024, 3, 1), "0", core.NewDate(2024, 3, 2), "0",
			core.ClassSimilarMonthlyBalance, core.RecommendWarnUser, "100"},
		{"existing zero", core.NewDate(2024, 3, 1), "0", core.NewDate(2024, 3, 2), "10",
			core.ClassMonthlyLargeDifference, core.RecommendManualReview, "0"},
		{"negative balance", core.NewDate(2024, 3, 1), "-500", core.NewDate(2024, 3, 9), "-502",
			core.ClassSimilarMonthlyBalance, core.RecommendWarnUser, "99.6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			put(t, store, tt.existingDate, tt.existingAmount)
			r := NewResolver(store, DefaultPolicy(), nil)

			got, err := r.Classify(context.Background(), "acct", tt.newDate, d(tt.newAmount))
			if err != nil {
				t.Fatal(err)
			}
			if got.Classification != tt.class || got.Recommendation != tt.rec {
				t.Errorf("got %s/%s, want %s/%s", got.Classification, got.Recommendation, tt.class, tt.rec)
			}
			if !got.IsDuplicate {
				t.Error("IsDuplicate should be set when a snapshot exists")
			}
			if !got.SimilarityPercent().Equal(d(tt.similarity)) {
				t.Errorf("similarity = %s%%, want %s%%", got.SimilarityPercent(), tt.similarity)
			}
		})
	}
}

func TestResolver_NoConflict(t *testing.T) {
	store := memory.New()
	put(t, store, core.NewDate(2024, 2, 28), "1000")
	r := NewResolver(store, DefaultPolicy(), nil)

	got, err := r.Classify(context.Background(), "acct", core.NewDate(2024, 3, 1), d("1000"))
	if err != nil {
		t.Fatal(err)
	}
	if got.IsDuplicate || got.Classification != core.ClassNone || got.Recommendation != core.RecommendSafeToSave {
		t.Errorf("got %+v", got)
	}
}

func TestResolver_ConfigurableThresholds(t *testing.T) {
	store := memory.New()
	put(t, store, core.NewDate(2024, 3, 1), "1000")
	policy, err := NewPolicy(0.05, 0.10)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(store, policy, nil)

	got, _ := r.Classify(context.Background(), "acct", core.NewDate(2024, 3, 20), d("1040"))
	if got.Classification != core.ClassSimilarMonthlyBalance {
		t.Errorf("classification = %s with 5%% dup threshold", got.Classification)
	}
}

func TestResolver_ExcludesID(t *testing.T) {
	store := memory.New()
	b := put(t, store, core.NewDate(2024, 3, 15), "1000")
	r := NewResolver(store, DefaultPolicy(), nil)

	got, err := r.ClassifyExcluding(context.Background(), "acct", core.NewDate(2024, 3, 15), d("1000"), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Recommendation != core.RecommendSafeToSave {
		t.Errorf("excluded snapshot still matched: %+v", got)
	}
}

func TestMostRelevant(t *testing.T) {
	snaps := []core.BalanceSnapshot{
		{ID: 1, Date: core.NewDate(2024, 3, 5)},
		{ID: 2, Date: core.NewDate(2024, 3, 15)},
		{ID: 3, Date: core.NewDate(2024, 3, 25)},
	}
	tests := []struct {
		date core.Date
		want int64
	}{
		{core.NewDate(2024, 3, 15), 2},
		{core.NewDate(2024, 3, 6), 1},
		{core.NewDate(2024, 3, 20), 3}, // tie between 15 and 25 goes to the later date
		{core.NewDate(2024, 3, 31), 3},
	}
	for _, tt := range tests {
		if got := MostRelevant(snaps, tt.date); got.ID != tt.want {
			t.Errorf("MostRelevant(%s) = %d, want %d", tt.date, got.ID, tt.want)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	if _, err := NewPolicy(0, 0.05); err == nil {
		t.Error("zero dup threshold accepted")
	}
	if _, err := NewPolicy(0.05, 0.01); err == nil {
		t.Error("warn below dup accepted")
	}
	if _, err := NewPolicy(0.01, 1); err == nil {
		t.Error("warn of 1 accepted")
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Error(err)
	}
}
