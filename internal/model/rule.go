package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRuleAccuracy is the optimistic accuracy a freshly learned rule starts with.
const DefaultRuleAccuracy = 1.0

// Rule maps a token set, optionally narrowed by an exact amount and a
// currency, to the category and payee that should be applied when it fires.
type Rule struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastUsedAt  *time.Time
	Amount      decimal.NullDecimal
	Tokens      TokenSet
	Owner       string
	Currency    string
	Category    string
	Payee       string
	ID          int64
	UsageCount  int
	Specificity float64
	Accuracy    float64
}

// HasAmount reports whether the rule only fires for one exact amount.
func (r Rule) HasAmount() bool {
	return r.Amount.Valid
}

// HasCurrency reports whether the rule only fires for one currency.
func (r Rule) HasCurrency() bool {
	return r.Currency != ""
}

// Key returns the identity of the rule within its owner's rule set.
func (r Rule) Key() RuleKey {
	return RuleKey{
		Owner:    r.Owner,
		Tokens:   r.Tokens.String(),
		Amount:   AmountKey(r.Amount),
		Currency: strings.ToUpper(r.Currency),
	}
}

// Variant describes which optional components a rule carries.
func (r Rule) Variant() string {
	switch {
	case r.HasAmount() && r.HasCurrency():
		return "tokens+amount+currency"
	case r.HasCurrency():
		return "tokens+currency"
	case r.HasAmount():
		return "tokens+amount"
	default:
		return "tokens"
	}
}

// RuleKey is the unique identity of a rule: (owner, tokens, amount, currency).
// Absent amount and currency are represented by empty strings.
type RuleKey struct {
	Owner    string
	Tokens   string
	Amount   string
	Currency string
}

// AmountKey renders an optional amount in canonical decimal form, so that
// 582.00 and 582 produce the same key. An absent amount renders as "".
func AmountKey(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return ""
	}
	return amount.Decimal.String()
}

// RuleStats aggregates an owner's rule set.
type RuleStats struct {
	TopRules        []Rule
	RuleCount       int
	TotalUsage      int
	AverageUsage    float64
	AverageAccuracy float64
}
