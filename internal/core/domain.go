package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// DefaultCategory receives rows nothing else could classify.
const DefaultCategory = "Misc"

type (
	// Date is a civil calendar date stored as UTC midnight.
	Date struct {
		time.Time
	}

	// RawRow is one normalized row produced by a source adapter, in file order.
	// Date and Amount stay textual so canonicalization owns parsing.
	RawRow struct {
		Line        int
		Date        string
		Description string
		Amount      string
		Category    string
		Source      string
	}

	// Identity is the logical duplicate key of a transaction.
	Identity struct {
		Hash string
		Rank int
	}

	Transaction struct {
		ID           int64
		Date         Date
		Description  string
		Amount       decimal.Decimal
		Category     string
		Source       string
		IdentityHash string
		Rank         int    // 0 for manual entries
		BatchID      string // empty for manual entries
		ImportedAt   time.Time
		StorageKey   string
	}

	// CategoryDefinition is immutable reference data owned by the catalog.
	CategoryDefinition struct {
		Name         string   `yaml:"name"`
		Keywords     []string `yaml:"keywords"`
		IsInvestment bool     `yaml:"investment"`
		IsIncome     bool     `yaml:"income"`
		IsPayment    bool     `yaml:"payment"`
	}

	// UploadRecord remembers a source file that was imported.
	UploadRecord struct {
		FileHash   string
		Filename   string
		Source     string
		BatchID    string
		ImportedAt time.Time
	}
)

var (
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptySource      = errors.New("empty source")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseISODate parses a YYYY-MM-DD date.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// MonthKey returns the YYYY-MM bucket of the date.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// SameMonth reports whether both dates fall in the same calendar month.
func (d Date) SameMonth(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

func (i Identity) String() string {
	return fmt.Sprintf("%s#%d", i.Hash, i.Rank)
}

func (t Transaction) MonthKey() string {
	return t.Date.MonthKey()
}

func (t Transaction) Identity() Identity {
	return Identity{Hash: t.IdentityHash, Rank: t.Rank}
}

// IsManual reports whether the transaction bypassed the batch machinery.
func (t Transaction) IsManual() bool {
	return t.BatchID == ""
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.Source) == "" {
		return ErrEmptySource
	}
	return nil
}

// Matches reports whether a description contains any of the category keywords.
func (c CategoryDefinition) Matches(description string) bool {
	description = strings.ToLower(description)
	for _, kw := range c.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(description, kw) {
			return true
		}
	}
	return false
}

// CountsTowardTotal reports whether the category is part of spending totals.
func (c CategoryDefinition) CountsTowardTotal() bool {
	return !c.IsIncome && !c.IsPayment
}
