package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/tokens"
	"github.com/shopspring/decimal"
)

// Event is a categorization made by a user: the transaction's description,
// amount and currency together with the category and payee they chose.
type Event struct {
	At          time.Time // When the categorization happened; zero means now
	Amount      decimal.NullDecimal
	Owner       string
	Description string
	Currency    string
	Category    string
	Payee       string
}

// variant is the shape of one generated rule.
type variant struct {
	amount   bool
	currency bool
}

// variants in generation order: tokens, tokens+amount+currency,
// tokens+currency, tokens+amount.
var variants = []variant{
	{amount: false, currency: false},
	{amount: true, currency: true},
	{amount: false, currency: true},
	{amount: true, currency: false},
}

// Generator turns categorization events into rules.
type Generator struct {
	store           RuleWriter
	sanitizer       *tokens.Sanitizer
	defaultAccuracy float64
}

// NewGenerator creates a generator that stores rules in store. New rules
// start with defaultAccuracy.
func NewGenerator(store RuleWriter, sanitizer *tokens.Sanitizer, defaultAccuracy float64) *Generator {
	return &Generator{
		store:           store,
		sanitizer:       sanitizer,
		defaultAccuracy: defaultAccuracy,
	}
}

// Generate learns up to four rules from ev, one per variant whose amount
// and currency the event carries, and upserts each. Existing rules with the
// same key relearn the event's category and payee. A description without
// usable tokens produces no rules.
func (g *Generator) Generate(ctx context.Context, ev Event) ([]model.Rule, error) {
	owner := strings.TrimSpace(ev.Owner)
	if owner == "" {
		return nil, common.InvalidInput("owner is required")
	}
	category := strings.TrimSpace(ev.Category)
	if category == "" {
		return nil, common.InvalidInput("category is required")
	}
	currency, err := NormalizeCurrency(ev.Currency)
	if err != nil {
		return nil, err
	}

	toks := g.sanitizer.Sanitize(ev.Description)
	if toks.IsEmpty() {
		slog.Debug("No usable tokens, skipping rule generation",
			"owner", owner,
			"description", ev.Description)
		return nil, nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	generated := make([]model.Rule, 0, len(variants))
	for _, v := range variants {
		if v.amount && !ev.Amount.Valid {
			continue
		}
		if v.currency && currency == "" {
			continue
		}

		rule := model.Rule{
			Owner:       owner,
			Tokens:      toks,
			Category:    category,
			Payee:       strings.TrimSpace(ev.Payee),
			Specificity: Specificity(toks, v.amount, v.currency),
			Accuracy:    g.defaultAccuracy,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		if v.amount {
			rule.Amount = ev.Amount
		}
		if v.currency {
			rule.Currency = currency
		}

		if err := g.store.UpsertRule(ctx, &rule); err != nil {
			return generated, fmt.Errorf("failed to store %s rule: %w", rule.Variant(), err)
		}
		generated = append(generated, rule)
	}

	slog.Debug("Generated rules",
		"owner", owner,
		"tokens", toks.String(),
		"count", len(generated))

	return generated, nil
}
