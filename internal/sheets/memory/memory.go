package memory

import (
	"context"
	"sort"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// Mirror keeps mirrored aggregates in process. It backs the worker when no
// spreadsheet is configured and serves as the test double for the port.
type Mirror struct {
	mu     sync.Mutex
	months map[string]core.MonthlyAggregate
	writes int
}

var _ ports.AggregateMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{months: make(map[string]core.MonthlyAggregate)}
}

// WriteAggregates stores a copy of each aggregate, replacing the month.
func (m *Mirror) WriteAggregates(_ context.Context, aggs []core.MonthlyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range aggs {
		m.months[a.MonthKey] = a.Clone()
	}
	m.writes++
	return nil
}

func (m *Mirror) ReadAggregate(_ context.Context, month string) (core.MonthlyAggregate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.months[month]
	if !ok {
		return core.MonthlyAggregate{}, false, nil
	}
	return a.Clone(), true, nil
}

// Months returns the mirrored month keys in order.
func (m *Mirror) Months() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.months))
	for k := range m.months {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Writes returns how many WriteAggregates calls were made.
func (m *Mirror) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
