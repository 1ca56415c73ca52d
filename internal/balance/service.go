package balance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/pending"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

var (
	// ErrBlocked is returned when a write duplicates an existing snapshot.
	ErrBlocked = errors.New("balance already recorded")
	// ErrUnknownToken is returned for expired or already used confirmations.
	ErrUnknownToken = errors.New("unknown or expired confirmation token")
	// ErrStale is returned when the month changed between staging and confirming.
	ErrStale = errors.New("balances changed since the conflict was reported")
)

// Request is a proposed snapshot.
type Request struct {
	AccountID  string
	Date       core.Date
	Amount     decimal.Decimal
	Source     string
	Notes      string
	Confidence decimal.Decimal
}

func (r Request) snapshot(now time.Time) core.BalanceSnapshot {
	confidence := r.Confidence
	if confidence.IsZero() {
		confidence = decimal.NewFromInt(1)
	}
	source := strings.TrimSpace(r.Source)
	if source == "" {
		source = "manual"
	}
	return core.BalanceSnapshot{
		AccountID:  strings.TrimSpace(r.AccountID),
		Date:       r.Date,
		Amount:     r.Amount,
		Source:     source,
		Confidence: confidence,
		Notes:      r.Notes,
		CreatedAt:  now,
	}
}

// Outcome of Submit or Confirm.
type Outcome struct {
	Conflict core.ConflictResult
	// Saved is set when a snapshot was written.
	Saved *core.BalanceSnapshot
	// Replaced is the ID of a snapshot removed by this write.
	Replaced int64
	// Token is set when the write waits for Confirm.
	Token string
}

type staged struct {
	req      Request
	conflict core.ConflictResult
}

// Service applies resolver decisions to the store.
type Service struct {
	store    storage.BalanceStore
	resolver *Resolver
	pending  *pending.Store[staged]
	logger   *log.Logger
	now      func() time.Time
}

// NewService builds a balance service. Staged writes expire after pendingTTL;
// at most pendingMax are held at once.
func NewService(store storage.BalanceStore, policy Policy, pendingTTL time.Duration, pendingMax int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:    store,
		resolver: NewResolver(store, policy, logger),
		pending:  pending.NewStore[staged](pendingMax, pendingTTL),
		logger:   logger.WithComponent(log.ComponentBalance),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Pending exposes the confirmation store so the host can sweep it.
func (s *Service) Pending() pending.Sweepable {
	return s.pending
}

// Resolver returns the classifier used by the service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Submit classifies req. Safe writes are stored at once, exact duplicates
// are refused with ErrBlocked, anything else is staged behind a token.
func (s *Service) Submit(ctx context.Context, req Request) (*Outcome, error) {
	snap := req.snapshot(s.now())
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	conflict, err := s.resolver.Classify(ctx, snap.AccountID, snap.Date, snap.Amount)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Conflict: conflict}

	switch conflict.Recommendation {
	case core.RecommendSafeToSave:
		if err := s.store.InsertBalance(ctx, &snap); err != nil {
			return nil, err
		}
		out.Saved = &snap
	case core.RecommendBlockSave:
		s.logger.InfoContext(ctx, "Duplicate balance refused",
			log.FieldAccount, snap.AccountID, "date", snap.Date.String())
		return out, ErrBlocked
	default:
		out.Token = s.pending.Put(staged{req: req, conflict: conflict})
	}
	return out, nil
}

// Confirm applies a staged write. Same-date corrections and monthly
// updates replace the snapshot they conflicted with; other confirmations
// are stored alongside it. The month is classified again first and the
// write is refused with ErrStale if the picture changed.
func (s *Service) Confirm(ctx context.Context, token string) (*Outcome, error) {
	st, ok := s.pending.Take(token)
	if !ok {
		return nil, ErrUnknownToken
	}
	snap := st.req.snapshot(s.now())

	conflict, err := s.resolver.Classify(ctx, snap.AccountID, snap.Date, snap.Amount)
	if err != nil {
		return nil, err
	}
	if conflict.Classification != st.conflict.Classification || existingID(conflict) != existingID(st.conflict) {
		return &Outcome{Conflict: conflict}, ErrStale
	}

	out := &Outcome{Conflict: conflict}
	switch conflict.Recommendation {
	case core.RecommendRequireConfirmation, core.RecommendSuggestUpdate:
		oldID := existingID(conflict)
		if err := s.store.ReplaceBalance(ctx, oldID, &snap); err != nil {
			return nil, fmt.Errorf("replace balance %d: %w", oldID, err)
		}
		out.Replaced = oldID
	case core.RecommendWarnUser, core.RecommendManualReview:
		if err := s.store.InsertBalance(ctx, &snap); err != nil {
			return nil, err
		}
	default:
		return out, fmt.Errorf("cannot confirm %s", conflict.Recommendation)
	}
	out.Saved = &snap

	s.logger.WithFields(log.NewFields().
		WithConflict(snap.AccountID, string(conflict.Classification), string(conflict.Recommendation), conflict.SimilarityPercent().String()),
	).InfoContext(ctx, "Balance confirmed", "replaced", out.Replaced)
	return out, nil
}

// Cancel discards a staged write.
func (s *Service) Cancel(token string) {
	s.pending.Delete(token)
}

func existingID(c core.ConflictResult) int64 {
	if c.Existing == nil {
		return 0
	}
	return c.Existing.ID
}

// MonthSummary describes an account's snapshots in one month.
type MonthSummary struct {
	AccountID    string
	MonthKey     string
	Count        int
	Balances     []core.BalanceSnapshot
	LatestAmount decimal.Decimal
	LatestDate   core.Date
	FirstDate    core.Date
}

func (s *Service) MonthSummary(ctx context.Context, accountID, month string) (*MonthSummary, error) {
	if _, _, err := core.ParseMonthKey(month); err != nil {
		return nil, err
	}
	balances, err := s.store.ListBalancesInMonth(ctx, accountID, month)
	if err != nil {
		return nil, err
	}
	sum := &MonthSummary{AccountID: accountID, MonthKey: month, Count: len(balances), Balances: balances}
	if len(balances) == 0 {
		return sum, nil
	}
	first, last := balances[0], balances[0]
	for _, b := range balances[1:] {
		if b.Date.Before(first.Date.Time) {
			first = b
		}
		if !b.Date.Before(last.Date.Time) {
			last = b
		}
	}
	sum.FirstDate = first.Date
	sum.LatestDate = last.Date
	sum.LatestAmount = last.Amount
	return sum, nil
}
