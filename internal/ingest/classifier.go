package ingest

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/storage"
)

// Classifier decides whether an identity was already recorded by an
// earlier import.
type Classifier struct {
	store storage.TransactionStore
}

func NewClassifier(store storage.TransactionStore) *Classifier {
	return &Classifier{store: store}
}

// IsDuplicate reports true only when (hash, rank) is stored under a
// different import time. A match with the same import time belongs to the
// current pass.
func (c *Classifier) IsDuplicate(ctx context.Context, hash string, rank int, importedAt time.Time) (bool, error) {
	existing, err := c.store.FindByIdentity(ctx, hash, rank)
	if err != nil {
		return false, fmt.Errorf("classify %s#%d: %w", hash, rank, err)
	}
	if existing == nil {
		return false, nil
	}
	return !existing.ImportedAt.Equal(importedAt), nil
}
