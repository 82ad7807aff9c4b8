// Package rules learns categorization rules from manual categorizations and
// matches transactions against them.
package rules

import (
	"context"

	"github.com/Veraticus/cumin/internal/model"
)

// RuleWriter persists generated rules with upsert semantics.
type RuleWriter interface {
	// UpsertRule inserts the rule or refreshes the existing one with the
	// same key, updating rule in place with the stored state.
	UpsertRule(ctx context.Context, rule *model.Rule) error
}

// RuleSource supplies the rules that could match a transaction.
type RuleSource interface {
	// CandidateRules returns owner's rules whose currency is unset or equal
	// to currency.
	CandidateRules(ctx context.Context, owner, currency string) ([]model.Rule, error)
}
