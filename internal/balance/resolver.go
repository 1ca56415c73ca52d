// Package balance reconciles account balance snapshots against what is
// already recorded for the same month.
package balance

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

// Policy holds the difference thresholds as fractions of the existing
// balance.
type Policy struct {
	DupThreshold  decimal.Decimal
	WarnThreshold decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		DupThreshold:  decimal.RequireFromString("0.01"),
		WarnThreshold: decimal.RequireFromString("0.05"),
	}
}

// NewPolicy builds a policy from float configuration values.
func NewPolicy(dup, warn float64) (Policy, error) {
	p := Policy{DupThreshold: decimal.NewFromFloat(dup), WarnThreshold: decimal.NewFromFloat(warn)}
	return p, p.Validate()
}

func (p Policy) Validate() error {
	if !p.DupThreshold.IsPositive() {
		return errors.New("duplicate threshold must be positive")
	}
	if p.WarnThreshold.LessThan(p.DupThreshold) {
		return errors.New("warn threshold must not be below duplicate threshold")
	}
	if p.WarnThreshold.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("warn threshold must be below 1")
	}
	return nil
}

// Resolver classifies a proposed snapshot. It never writes.
type Resolver struct {
	store  storage.BalanceStore
	policy Policy
	logger *log.Logger
}

func NewResolver(store storage.BalanceStore, policy Policy, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{store: store, policy: policy, logger: logger.WithComponent(log.ComponentBalance)}
}

// Classify compares (date, amount) with the account's snapshots in the
// same calendar month.
func (r *Resolver) Classify(ctx context.Context, accountID string, date core.Date, amount decimal.Decimal) (core.ConflictResult, error) {
	return r.ClassifyExcluding(ctx, accountID, date, amount, 0)
}

// ClassifyExcluding ignores the snapshot with excludeID, used when a
// stored snapshot is being corrected.
func (r *Resolver) ClassifyExcluding(ctx context.Context, accountID string, date core.Date, amount decimal.Decimal, excludeID int64) (core.ConflictResult, error) {
	all, err := r.store.ListBalancesInMonth(ctx, accountID, date.MonthKey())
	if err != nil {
		return core.ConflictResult{}, fmt.Errorf("list balances for %s: %w", accountID, err)
	}
	existing := all[:0:0]
	for _, b := range all {
		if b.ID != excludeID || excludeID == 0 {
			existing = append(existing, b)
		}
	}

	if len(existing) == 0 {
		return core.ConflictResult{
			Classification: core.ClassNone,
			Similarity:     decimal.NewFromInt(1),
			Recommendation: core.RecommendSafeToSave,
			Message:        "No conflicts detected",
		}, nil
	}

	match := MostRelevant(existing, date)
	res := r.analyze(match, date, amount)

	r.logger.WithFields(log.NewFields().
		WithOperation(log.OpClassify).
		WithConflict(accountID, string(res.Classification), string(res.Recommendation), res.SimilarityPercent().String()),
	).DebugContext(ctx, "Balance classified")
	return res, nil
}

func (r *Resolver) analyze(existing core.BalanceSnapshot, date core.Date, amount decimal.Decimal) core.ConflictResult {
	sim := Similarity(existing.Amount, amount)
	one := decimal.NewFromInt(1)
	dupFloor := one.Sub(r.policy.DupThreshold)
	warnFloor := one.Sub(r.policy.WarnThreshold)

	res := core.ConflictResult{
		IsDuplicate: true,
		Similarity:  sim,
		Existing:    &existing,
	}
	ex, nw := core.FormatAmount(existing.Amount), core.FormatAmount(amount)

	if existing.Date.Equal(date.Time) {
		if sim.GreaterThanOrEqual(dupFloor) {
			res.Classification = core.ClassExactDuplicate
			res.Recommendation = core.RecommendBlockSave
			res.Message = fmt.Sprintf("Identical balance already exists for %s", date)
		} else {
			res.Classification = core.ClassSameDateDifferent
			res.Recommendation = core.RecommendRequireConfirmation
			res.Message = fmt.Sprintf("Different balance exists for %s. Replace %s with %s?", date, ex, nw)
		}
		return res
	}

	switch {
	case sim.GreaterThanOrEqual(dupFloor):
		res.Classification = core.ClassSimilarMonthlyBalance
		res.Recommendation = core.RecommendWarnUser
		res.Message = fmt.Sprintf("Very similar balance exists for %s in the same month", existing.Date)
	case sim.GreaterThanOrEqual(warnFloor):
		res.Classification = core.ClassMonthlyUpdate
		res.Recommendation = core.RecommendSuggestUpdate
		res.Message = fmt.Sprintf("Monthly balance update %s -> %s. Replace %s with %s?",
			existing.Date.Format("01/02"), date.Format("01/02"), ex, nw)
	default:
		res.Classification = core.ClassMonthlyLargeDifference
		res.Recommendation = core.RecommendManualReview
		res.Message = fmt.Sprintf("Large difference from existing monthly balance. Previous %s (%s), new %s (%s)",
			ex, existing.Date.Format("01/02"), nw, date.Format("01/02"))
	}
	return res
}

// Similarity is 1 - |existing - new| / |existing|. Two zero amounts are
// identical; a zero existing amount is otherwise dissimilar.
func Similarity(existing, amount decimal.Decimal) decimal.Decimal {
	if existing.IsZero() {
		if amount.IsZero() {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	diff := existing.Sub(amount).Abs()
	return decimal.NewFromInt(1).Sub(diff.DivRound(existing.Abs(), 8))
}

// MostRelevant picks the snapshot on the same date if one exists, else the
// nearest by date, with ties going to the later date. snaps must not be
// empty.
func MostRelevant(snaps []core.BalanceSnapshot, date core.Date) core.BalanceSnapshot {
	best := snaps[0]
	bestDist := distance(best.Date, date)
	for _, s := range snaps[1:] {
		dist := distance(s.Date, date)
		switch {
		case dist < bestDist:
			best, bestDist = s, dist
		case dist == bestDist && s.Date.After(best.Date.Time):
			best = s
		case dist == bestDist && s.Date.Equal(best.Date.Time) && s.ID > best.ID:
			best = s
		}
	}
	return best
}

func distance(a, b core.Date) int64 {
	d := a.Sub(b.Time)
	if d < 0 {
		d = -d
	}
	return int64(d)
}
