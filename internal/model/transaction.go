package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CategorySource records how a transaction got its category.
type CategorySource string

// Category source constants.
const (
	SourceNone   CategorySource = ""
	SourceManual CategorySource = "MANUAL"
	SourceRule   CategorySource = "RULE"
)

// Transaction represents a single financial transaction owned by one user.
type Transaction struct {
	Date        time.Time
	CreatedAt   time.Time
	Amount      decimal.Decimal
	ID          string
	Owner       string
	Description string // Raw transaction description
	Currency    string
	Category    string
	Payee       string
	AccountID   string
	Hash        string
	Source      CategorySource
	RuleID      int64 // Rule that categorized it, 0 unless Source is SourceRule
}

// IsCategorized reports whether a category has already been assigned.
func (t *Transaction) IsCategorized() bool {
	return strings.TrimSpace(t.Category) != ""
}

// GenerateHash creates a unique hash for duplicate detection on import.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		t.Owner,
		t.Date.Format("2006-01-02"),
		t.Amount.String(),
		strings.ToUpper(t.Currency),
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
