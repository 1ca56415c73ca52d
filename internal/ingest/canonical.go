// Package ingest turns ordered source rows into persisted transactions
// without double-counting re-uploads.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// ErrMalformedRecord marks a row whose date or amount cannot be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// hashLength is the number of hex characters kept from the SHA-256 digest.
const hashLength = 32

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	time.RFC3339,
}

// Canonical is a row reduced to the fields that define its identity.
type Canonical struct {
	Date        core.Date
	Description string // trimmed, original case
	Amount      decimal.Decimal
	Source      string // trimmed, lower case
	Category    string
}

// Canonicalize parses a raw row. Any date or amount failure wraps
// ErrMalformedRecord.
func Canonicalize(row core.RawRow) (Canonical, error) {
	date, err := ParseDate(row.Date)
	if err != nil {
		return Canonical{}, fmt.Errorf("%w: line %d: date %q", ErrMalformedRecord, row.Line, row.Date)
	}
	amount, err := core.ParseAmount(row.Amount)
	if err != nil {
		return Canonical{}, fmt.Errorf("%w: line %d: amount %q", ErrMalformedRecord, row.Line, row.Amount)
	}
	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		return Canonical{}, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, row.Line, core.ErrEmptyDescription)
	}
	source := normalizeSource(row.Source)
	if source == "" {
		return Canonical{}, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, row.Line, core.ErrEmptySource)
	}
	category := strings.TrimSpace(row.Category)
	if category == "" {
		category = core.DefaultCategory
	}
	return Canonical{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Source:      source,
		Category:    category,
	}, nil
}

// ParseDate accepts every date layout the source adapters emit.
func ParseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("unrecognized date %q", s)
}

func normalizeSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Key is the pipe-joined identity text that gets hashed.
func (c Canonical) Key() string {
	return strings.Join([]string{
		c.Date.String(),
		strings.ToUpper(strings.TrimSpace(c.Description)),
		c.Amount.String(),
		normalizeSource(c.Source),
	}, "|")
}

// IdentityHash depends only on date, description, amount and source.
func IdentityHash(c Canonical) string {
	sum := sha256.Sum256([]byte(c.Key()))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// StorageKey is the physical uniqueness key of one stored row.
func StorageKey(hash string, rank int, batchID string) string {
	sum := sha256.Sum256([]byte(hash + "|" + strconv.Itoa(rank) + "|" + batchID))
	return hex.EncodeToString(sum[:])
}
