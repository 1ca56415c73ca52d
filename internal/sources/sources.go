// Package sources converts institution exports into ordered raw rows.
package sources

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrUndetected    = errors.New("could not detect source from header")
)

// Adapter reads one institution's export format. Parse emits rows in file
// order with amounts already in the house sign convention: spending
// positive, money in negative.
type Adapter interface {
	Tag() string
	Detect(header []string) bool
	Parse(r io.Reader) ([]core.RawRow, error)
}

// Registry maps institution tags to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry holds the built-in institutions.
func DefaultRegistry() *Registry {
	return NewRegistry(Chase{}, Citi{}, Wells{})
}

// Register adds or replaces the adapter for its tag.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := strings.ToLower(a.Tag())
	if _, ok := r.adapters[tag]; !ok {
		r.order = append(r.order, tag)
	}
	r.adapters[tag] = a
}

func (r *Registry) Get(tag string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, tag)
	}
	return a, nil
}

// Tags lists registered tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Detect returns the first adapter, in registration order, that
// recognizes header.
func (r *Registry) Detect(header []string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tag := range r.order {
		if a := r.adapters[tag]; a.Detect(header) {
			return a, nil
		}
	}
	return nil, ErrUndetected
}

// Parse reads data with the adapter for tag, or detects the adapter from
// the first CSV record when tag is empty.
func (r *Registry) Parse(tag string, data []byte) (Adapter, []core.RawRow, error) {
	var (
		a   Adapter
		err error
	)
	if strings.TrimSpace(tag) != "" {
		a, err = r.Get(tag)
	} else {
		var header []string
		header, err = csv.NewReader(bytes.NewReader(data)).Read()
		if err != nil {
			return nil, nil, fmt.Errorf("read header: %w", err)
		}
		a, err = r.Detect(header)
	}
	if err != nil {
		return nil, nil, err
	}
	rows, err := a.Parse(bytes.NewReader(data))
	if err != nil {
		return a, nil, fmt.Errorf("parse %s export: %w", a.Tag(), err)
	}
	return a, rows, nil
}

// table is a CSV file indexed by header name.
type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(r io.Reader, headerless []string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &table{index: map[string]int{}}, nil
	}
	header := headerless
	body := records
	if header == nil {
		header, body = records[0], records[1:]
	}
	t := &table{index: make(map[string]int, len(header)), rows: body}
	for i, name := range header {
		t.index[normalizeHeader(name)] = i
	}
	return t, nil
}

func (t *table) has(names ...string) bool {
	for _, n := range names {
		if _, ok := t.index[normalizeHeader(n)]; !ok {
			return false
		}
	}
	return true
}

func (t *table) get(row []string, name string) string {
	i, ok := t.index[normalizeHeader(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}

func headerHas(header []string, names ...string) bool {
	set := make(map[string]struct{}, len(header))
	for _, h := range header {
		set[normalizeHeader(h)] = struct{}{}
	}
	for _, n := range names {
		if _, ok := set[normalizeHeader(n)]; !ok {
			return false
		}
	}
	return true
}

// signed applies the shared sign rules to an amount that is already in the
// institution-adjusted convention. Unparseable text is passed through so
// ingestion rejects the row.
func signed(raw string, adjust func(decimal.Decimal) decimal.Decimal, bankCategory, description string) string {
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return raw
	}
	amount = adjust(amount)

	switch bankCategory {
	case "Pay", "Payment":
		return amount.Abs().Neg().String()
	}
	desc := strings.ToLower(description)
	switch {
	case strings.Contains(desc, "zelle from"):
		amount = amount.Abs().Neg()
	case strings.Contains(desc, "zelle to"):
		amount = amount.Abs()
	}
	return amount.String()
}

func negate(d decimal.Decimal) decimal.Decimal { return d.Neg() }

func parseDateLayout(layout, s string) (core.Date, error) {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return core.Date{}, err
	}
	return core.DateOf(t), nil
}
