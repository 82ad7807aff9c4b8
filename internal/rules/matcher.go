package rules

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/tokens"
	"github.com/shopspring/decimal"
)

// Match is a rule that fires for a transaction, with its score.
type Match struct {
	Rule  model.Rule
	Score float64
}

// Matcher finds the rules that fire for a transaction.
type Matcher struct {
	store     RuleSource
	sanitizer *tokens.Sanitizer
}

// NewMatcher creates a matcher reading candidate rules from store.
func NewMatcher(store RuleSource, sanitizer *tokens.Sanitizer) *Matcher {
	return &Matcher{
		store:     store,
		sanitizer: sanitizer,
	}
}

// FindMatching returns owner's rules that fire for a transaction with the
// given description, amount and currency, best first. An amount that is not
// valid only matches rules without an amount.
func (m *Matcher) FindMatching(ctx context.Context, owner, description string, amount decimal.NullDecimal, currency string) ([]Match, error) {
	query := m.sanitizer.Sanitize(description)
	if query.IsEmpty() {
		return nil, nil
	}

	candidates, err := m.store.CandidateRules(ctx, owner, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate rules: %w", err)
	}

	var matches []Match
	for _, rule := range candidates {
		if !Matches(rule, query, amount, currency) {
			continue
		}
		matches = append(matches, Match{Rule: rule, Score: rule.Specificity})
	}

	slices.SortFunc(matches, compareMatches)
	return matches, nil
}

// Matches reports whether rule fires for a transaction whose description
// sanitizes to query. Amount and currency are exact gates: a rule carrying
// either only fires when the transaction's value is equal.
func Matches(rule model.Rule, query model.TokenSet, amount decimal.NullDecimal, currency string) bool {
	if rule.Tokens.IsEmpty() || !rule.Tokens.SubsetOf(query) {
		return false
	}
	if rule.HasAmount() && (!amount.Valid || !rule.Amount.Decimal.Equal(amount.Decimal)) {
		return false
	}
	if rule.HasCurrency() && !strings.EqualFold(rule.Currency, strings.TrimSpace(currency)) {
		return false
	}
	return true
}

// compareMatches orders by score, specificity, usage and recency, all
// descending, with never-used rules after used ones. Rule ID breaks the
// remaining ties so the order is total.
func compareMatches(a, b Match) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Rule.Specificity, a.Rule.Specificity); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Rule.UsageCount, a.Rule.UsageCount); c != 0 {
		return c
	}
	if c := compareLastUsed(a.Rule.LastUsedAt, b.Rule.LastUsedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Rule.ID, b.Rule.ID)
}

func compareLastUsed(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return b.Compare(*a)
}
