package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	Classification string
	Recommendation string
)

const (
	ClassNone                   Classification = "none"
	ClassExactDuplicate         Classification = "exact_duplicate"
	ClassSameDateDifferent      Classification = "same_date_different_amount"
	ClassSimilarMonthlyBalance  Classification = "similar_monthly_balance"
	ClassMonthlyUpdate          Classification = "monthly_update"
	ClassMonthlyLargeDifference Classification = "monthly_large_difference"
)

const (
	RecommendSafeToSave          Recommendation = "safe_to_save"
	RecommendBlockSave           Recommendation = "block_save"
	RecommendRequireConfirmation Recommendation = "require_confirmation"
	RecommendWarnUser            Recommendation = "warn_user"
	RecommendSuggestUpdate       Recommendation = "suggest_update"
	RecommendManualReview        Recommendation = "manual_review"
)

// BalanceSnapshot is one account balance observation.
type BalanceSnapshot struct {
	ID         int64
	AccountID  string
	Date       Date
	Amount     decimal.Decimal
	Source     string
	Confidence decimal.Decimal
	Notes      string
	CreatedAt  time.Time
}

// ConflictResult is returned for every balance write attempt. It is never persisted.
type ConflictResult struct {
	IsDuplicate    bool
	Classification Classification
	Similarity     decimal.Decimal
	Recommendation Recommendation
	Message        string
	Existing       *BalanceSnapshot
}

var ErrEmptyAccount = errors.New("empty account id")

func (b BalanceSnapshot) Validate() error {
	if strings.TrimSpace(b.AccountID) == "" {
		return ErrEmptyAccount
	}
	return b.Date.Validate()
}

// SimilarityPercent returns the similarity scaled to 0..100 with two decimals.
func (r ConflictResult) SimilarityPercent() decimal.Decimal {
	return r.Similarity.Mul(decimal.NewFromInt(100)).Round(2)
}
