// Package aggregate maintains the monthly per-category totals.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Store is the persistence the recalculator needs.
type Store interface {
	storage.TransactionStore
	storage.AggregateStore
}

// Warning is a non-fatal problem met while recomputing one scope.
type Warning struct {
	MonthKey string
	Category string
	Message  string
}

func (w Warning) String() string {
	if w.Category == "" {
		return fmt.Sprintf("%s: %s", w.MonthKey, w.Message)
	}
	return fmt.Sprintf("%s/%s: %s", w.MonthKey, w.Category, w.Message)
}

// Report lists the aggregates written by one call and what went wrong.
type Report struct {
	Aggregates []core.MonthlyAggregate
	Warnings   []Warning
}

// Months returns the month keys that were written, sorted.
func (r *Report) Months() []string {
	out := make([]string, 0, len(r.Aggregates))
	for _, a := range r.Aggregates {
		out = append(out, a.MonthKey)
	}
	return out
}

// Recalculator rebuilds aggregates from stored transactions. Sums are
// always recomputed from scratch, never patched.
type Recalculator struct {
	store   Store
	lookup  core.CategoryLookup
	workers int
	locks   *keyedMutex
	logger  *log.Logger
	now     func() time.Time
}

func NewRecalculator(store Store, lookup core.CategoryLookup, workers int, logger *log.Logger) *Recalculator {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Recalculator{
		store:   store,
		lookup:  lookup,
		workers: workers,
		locks:   newKeyedMutex(),
		logger:  logger.WithComponent(log.ComponentAggregate),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Recompute refreshes every (month, category) in scopes. Months run in
// parallel up to the worker limit; the same month is never written by two
// goroutines at once. Per-category problems become warnings and the stale
// value is kept. The returned error is non-nil only when the context ends
// or a month could not be persisted.
func (r *Recalculator) Recompute(ctx context.Context, scopes core.ScopeSet) (*Report, error) {
	report := &Report{}
	if scopes.Empty() {
		return report, nil
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, month := range scopes.Months() {
		month := month // per-iteration copy; go directive is 1.21 (pre-1.22 loopvar semantics)
		categories := scopes.Categories(month)
		g.Go(func() error {
			agg, warnings, err := r.RecomputeMonth(gctx, month, categories)

			mu.Lock()
			defer mu.Unlock()
			report.Warnings = append(report.Warnings, warnings...)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed = append(failed, month)
				report.Warnings = append(report.Warnings, Warning{MonthKey: month, Message: err.Error()})
				return nil
			}
			report.Aggregates = append(report.Aggregates, agg)
			return nil
		})
	}

	err := g.Wait()
	sort.Slice(report.Aggregates, func(i, j int) bool {
		return report.Aggregates[i].MonthKey < report.Aggregates[j].MonthKey
	})
	if err != nil {
		return report, err
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return report, fmt.Errorf("recompute failed for months %v", failed)
	}
	return report, nil
}

// RecomputeMonth re-sums the listed categories of one month, keeps every
// other stored category total, derives the totals and upserts the result.
func (r *Recalculator) RecomputeMonth(ctx context.Context, month string, categories []string) (core.MonthlyAggregate, []Warning, error) {
	unlock := r.locks.Lock(month)
	defer unlock()

	var warnings []Warning

	existing, err := r.store.GetAggregate(ctx, month)
	if err != nil {
		return core.MonthlyAggregate{}, nil, fmt.Errorf("load aggregate %s: %w", month, err)
	}
	agg := core.NewMonthlyAggregate(month)
	if existing != nil {
		agg = existing.Clone()
	}

	for _, category := range categories {
		if _, ok := r.lookup(category); !ok {
			w := Warning{MonthKey: month, Category: category, Message: "no category definition, keeping stale total"}
			r.logger.WarnContext(ctx, "Skipping unknown category",
				log.FieldMonth, month, log.FieldCategory, category)
			warnings = append(warnings, w)
			continue
		}
		sum, err := r.store.SumAmounts(ctx, month, category)
		if err != nil {
			if ctx.Err() != nil {
				return core.MonthlyAggregate{}, warnings, ctx.Err()
			}
			r.logger.WarnContext(ctx, "Category sum failed, keeping stale total",
				log.FieldMonth, month, log.FieldCategory, category, log.FieldError, err)
			warnings = append(warnings, Warning{MonthKey: month, Category: category, Message: err.Error()})
			continue
		}
		agg.CategoryTotals[category] = sum
	}

	agg.ComputeTotals(r.lookup)
	agg.UpdatedAt = r.now()
	if err := agg.Validate(); err != nil {
		return core.MonthlyAggregate{}, warnings, fmt.Errorf("aggregate %s: %w", month, err)
	}
	if err := r.store.UpsertAggregate(ctx, agg); err != nil {
		return core.MonthlyAggregate{}, warnings, fmt.Errorf("upsert aggregate %s: %w", month, err)
	}

	r.logger.DebugContext(ctx, "Month recomputed",
		log.FieldOperation, log.OpRecompute,
		log.FieldMonth, month,
		"categories", len(categories),
		"total", agg.Total.String())
	return agg, warnings, nil
}

// RecomputeAll rebuilds every category of every month that has
// transactions.
func (r *Recalculator) RecomputeAll(ctx context.Context) (*Report, error) {
	months, err := r.store.ListMonthsWithTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	scopes := core.NewScopeSet()
	for _, month := range months {
		cats, err := r.store.ListCategoriesForMonth(ctx, month)
		if err != nil {
			return nil, fmt.Errorf("list categories for %s: %w", month, err)
		}
		for _, c := range cats {
			scopes.Add(month, c)
		}
	}

	start := time.Now()
	report, err := r.Recompute(ctx, scopes)
	r.logger.InfoContext(ctx, "Full reconciliation finished",
		log.FieldOperation, log.OpReconcile,
		"months", len(months),
		"warnings", len(report.Warnings),
		log.FieldDuration, time.Since(start).Milliseconds())
	return report, err
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
