// Package engine learns categorization rules from manual categorizations
// and applies them to uncategorized transactions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/config"
	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/rules"
	"github.com/Veraticus/cumin/internal/service"
	"github.com/Veraticus/cumin/internal/tokens"
	"github.com/shopspring/decimal"
)

// Engine orchestrates rule generation, matching and application. It holds
// no mutable state; everything persistent lives in the store.
type Engine struct {
	store     service.Storage
	sanitizer *tokens.Sanitizer
	generator *rules.Generator
	matcher   *rules.Matcher
	now       func() time.Time
	cfg       config.Engine
}

// New creates a new engine with the default configuration.
func New(store service.Storage) *Engine {
	return NewWithConfig(store, config.DefaultEngine())
}

// NewWithConfig creates a new engine with custom configuration. cfg is
// expected to have passed config.Engine.Validate.
func NewWithConfig(store service.Storage, cfg config.Engine) *Engine {
	sanitizer := tokens.NewSanitizer(cfg.Stopwords, cfg.MinTokenLength)
	return &Engine{
		store:     store,
		sanitizer: sanitizer,
		generator: rules.NewGenerator(store, sanitizer, cfg.DefaultAccuracy),
		matcher:   rules.NewMatcher(store, sanitizer),
		now:       time.Now,
		cfg:       cfg,
	}
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() config.Engine {
	return e.cfg
}

// Sanitizer returns the sanitizer used for descriptions.
func (e *Engine) Sanitizer() *tokens.Sanitizer {
	return e.sanitizer
}

// GenerateRules learns up to four rules from a categorization event.
func (e *Engine) GenerateRules(ctx context.Context, ev rules.Event) ([]model.Rule, error) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	return e.generator.Generate(ctx, ev)
}

// OnCategorized is the callback for a user categorizing txn. It learns
// rules from the transaction's description, amount and currency.
func (e *Engine) OnCategorized(ctx context.Context, txn model.Transaction, category, payee string) ([]model.Rule, error) {
	generated, err := e.GenerateRules(ctx, rules.Event{
		At:          e.now(),
		Owner:       txn.Owner,
		Description: txn.Description,
		Amount:      decimal.NewNullDecimal(txn.Amount),
		Currency:    txn.Currency,
		Category:    category,
		Payee:       payee,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to learn from transaction %s: %w", txn.ID, err)
	}

	slog.Info("Learned rules from categorization",
		"owner", txn.Owner,
		"transaction_id", txn.ID,
		"category", category,
		"rules", len(generated))

	return generated, nil
}

// FindMatchingRules returns owner's rules that fire for the description,
// amount and currency, best first.
func (e *Engine) FindMatchingRules(ctx context.Context, owner, description string, amount decimal.NullDecimal, currency string) ([]rules.Match, error) {
	return e.matcher.FindMatching(ctx, owner, description, amount, currency)
}

// ApplyBestMatchingRule applies the best eligible rule to txn and returns
// it. A categorized transaction is never touched. No eligible rule, or a
// transaction categorized concurrently, returns nil without error.
//
// On success txn is updated in memory to reflect the stored assignment.
func (e *Engine) ApplyBestMatchingRule(ctx context.Context, txn *model.Transaction) (*model.Rule, error) {
	if txn == nil {
		return nil, common.InvalidInput("transaction is required")
	}
	if txn.IsCategorized() {
		return nil, nil
	}

	currency, err := rules.NormalizeCurrency(txn.Currency)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txn.ID, err)
	}
	if currency == "" {
		return nil, common.InvalidInput("transaction %s has no currency", txn.ID)
	}

	matches, err := e.FindMatchingRules(ctx, txn.Owner, txn.Description, decimal.NewNullDecimal(txn.Amount), currency)
	if err != nil {
		return nil, err
	}

	for _, m := range matches {
		if !e.eligible(m) {
			continue
		}

		rule := m.Rule
		err := e.store.ApplyRule(ctx, txn.ID, &rule, e.now())
		switch {
		case err == nil:
			txn.Category = rule.Category
			if txn.Payee == "" {
				txn.Payee = rule.Payee
			}
			txn.Source = model.SourceRule
			txn.RuleID = rule.ID

			slog.Debug("Applied rule",
				"transaction_id", txn.ID,
				"rule_id", rule.ID,
				"variant", rule.Variant(),
				"score", m.Score,
				"category", rule.Category)
			return &rule, nil

		case errors.Is(err, common.ErrRuleNotFound):
			// Removed by a concurrent cleanup; the next candidate may still apply.
			slog.Debug("Rule vanished before it could be applied",
				"transaction_id", txn.ID,
				"rule_id", rule.ID)
			continue

		case errors.Is(err, common.ErrAlreadyCategorized):
			return nil, nil

		default:
			return nil, fmt.Errorf("failed to apply rule %d to transaction %s: %w", rule.ID, txn.ID, err)
		}
	}

	return nil, nil
}

// eligible applies the score and accuracy gates.
func (e *Engine) eligible(m rules.Match) bool {
	return m.Score >= e.cfg.MinScoreApply && m.Rule.Accuracy >= e.cfg.ThresholdAccuracy
}
