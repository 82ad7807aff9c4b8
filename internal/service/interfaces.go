// Package service defines the interfaces between the rule engine and its collaborators.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/cumin/internal/model"
)

// RuleStore owns rule identity and the atomic operations on rule counters.
type RuleStore interface {
	// UpsertRule inserts the rule or, when its key already exists for the
	// owner, refreshes category, payee and timestamps. The rule is updated
	// in place with the stored ID, counters and timestamps.
	UpsertRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, owner string, id int64) (*model.Rule, error)
	ListRules(ctx context.Context, owner string) ([]model.Rule, error)
	// CandidateRules returns the owner's rules whose currency is unset or
	// equal to currency. Token and amount tests are left to the caller.
	CandidateRules(ctx context.Context, owner, currency string) ([]model.Rule, error)
	DeleteStaleRules(ctx context.Context, owner string, cutoff time.Time, minUsage int) (int, error)
	RuleStats(ctx context.Context, owner string, topN int) (*model.RuleStats, error)
	SetRuleAccuracy(ctx context.Context, owner string, id int64, accuracy float64) error
}

// TransactionStore supplies transactions and persists category assignments.
type TransactionStore interface {
	// SaveTransactions stores new transactions, ignoring duplicates, and
	// returns how many were inserted.
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	// UncategorizedTransactionIDs lists uncategorized transaction IDs for
	// owner, oldest first. A limit of zero means no limit.
	UncategorizedTransactionIDs(ctx context.Context, owner string, limit int) ([]string, error)
	// SetTransactionCategory records a manual categorization.
	SetTransactionCategory(ctx context.Context, id, category, payee string) error
	ListOwners(ctx context.Context) ([]string, error)
}

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	Owner             string
	Limit             int
	UncategorizedOnly bool
}

// Storage is the full persistence contract used by the engine.
type Storage interface {
	RuleStore
	TransactionStore

	// ApplyRule assigns the rule's category and payee to the transaction
	// and increments the rule's usage as one atomic unit. It fails with
	// common.ErrAlreadyCategorized if the transaction gained a category in
	// the meantime, and with common.ErrRuleNotFound if the rule is gone.
	ApplyRule(ctx context.Context, transactionID string, rule *model.Rule, at time.Time) error

	Migrate(ctx context.Context) error
	Close() error
}
