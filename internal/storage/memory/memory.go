package memory

import (
	"context"
	"sort"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

// Store is an in-process storage.Store. All uniqueness checks and writes
// happen under one mutex, which gives the same atomic insert-if-absent the
// SQL backends get from their UNIQUE constraints.
type Store struct {
	mu          sync.Mutex
	nextID      int64
	txs         map[int64]core.Transaction
	byIdentity  map[core.Identity]int64
	byKey       map[string]int64
	aggregates  map[string]core.MonthlyAggregate
	balances    map[int64]core.BalanceSnapshot
	nextBalance int64
	uploads     map[string]core.UploadRecord
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		txs:        make(map[int64]core.Transaction),
		byIdentity: make(map[core.Identity]int64),
		byKey:      make(map[string]int64),
		aggregates: make(map[string]core.MonthlyAggregate),
		balances:   make(map[int64]core.BalanceSnapshot),
		uploads:    make(map[string]core.UploadRecord),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) FindByIdentity(_ context.Context, hash string, rank int) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIdentity[core.Identity{Hash: hash, Rank: rank}]
	if !ok {
		return nil, nil
	}
	tx := s.txs[id]
	return &tx, nil
}

func (s *Store) InsertIfAbsent(_ context.Context, tx *core.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIdentity[tx.Identity()]; ok {
		return false, nil
	}
	if _, ok := s.byKey[tx.StorageKey]; ok {
		return false, nil
	}
	s.nextID++
	tx.ID = s.nextID
	s.txs[tx.ID] = *tx
	s.byIdentity[tx.Identity()] = tx.ID
	s.byKey[tx.StorageKey] = tx.ID
	return true, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.txs[tx.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if id, ok := s.byIdentity[tx.Identity()]; ok && id != tx.ID {
		return storage.ErrConflict
	}
	if id, ok := s.byKey[tx.StorageKey]; ok && id != tx.ID {
		return storage.ErrConflict
	}
	delete(s.byIdentity, old.Identity())
	delete(s.byKey, old.StorageKey)
	s.txs[tx.ID] = tx
	s.byIdentity[tx.Identity()] = tx.ID
	s.byKey[tx.StorageKey] = tx.ID
	return nil
}

func (s *Store) ListTransactionsByMonth(_ context.Context, month string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.MonthKey() == month {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) SumAmounts(_ context.Context, month, category string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, tx := range s.txs {
		if tx.MonthKey() == month && tx.Category == category {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (s *Store) ListMonthsWithTransactions(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, tx := range s.txs {
		seen[tx.MonthKey()] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (s *Store) ListCategoriesForMonth(_ context.Context, month string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, tx := range s.txs {
		if tx.MonthKey() == month {
			seen[tx.Category] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *Store) GetAggregate(_ context.Context, month string) (*core.MonthlyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.aggregates[month]
	if !ok {
		return nil, nil
	}
	c := agg.Clone()
	return &c, nil
}

func (s *Store) UpsertAggregate(_ context.Context, agg core.MonthlyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[agg.MonthKey] = agg.Clone()
	return nil
}

func (s *Store) ListAggregates(_ context.Context) ([]core.MonthlyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.MonthlyAggregate, 0, len(s.aggregates))
	for _, agg := range s.aggregates {
		out = append(out, agg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthKey < out[j].MonthKey })
	return out, nil
}

func (s *Store) ListBalancesInMonth(_ context.Context, accountID, month string) ([]core.BalanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BalanceSnapshot
	for _, b := range s.balances {
		if b.AccountID == accountID && b.Date.MonthKey() == month {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) InsertBalance(_ context.Context, b *core.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBalance++
	b.ID = s.nextBalance
	s.balances[b.ID] = *b
	return nil
}

func (s *Store) ReplaceBalance(_ context.Context, oldID int64, b *core.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[oldID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.balances, oldID)
	s.nextBalance++
	b.ID = s.nextBalance
	s.balances[b.ID] = *b
	return nil
}

func (s *Store) FindUpload(_ context.Context, fileHash string) (*core.UploadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[fileHash]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) RecordUpload(_ context.Context, u core.UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[u.FileHash]; !ok {
		s.uploads[u.FileHash] = u
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
