package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ItemError is a per-transaction failure that did not stop its batch.
type ItemError struct {
	Err           error
	TransactionID string
}

func (e ItemError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.TransactionID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchResult reports one owner's batch application.
type BatchResult struct {
	RunID      string
	Owner      string
	Errors     []ItemError
	Updated    int
	Considered int
	Duration   time.Duration
}

// ItemOutcome describes what happened to one transaction of a batch.
type ItemOutcome struct {
	Err           error
	Owner         string
	TransactionID string
	RuleID        int64
	Applied       bool
}

// BatchOptions configures ApplyRulesForOwners.
type BatchOptions struct {
	// Progress is called after each transaction. It may be called from
	// several goroutines at once.
	Progress        func(ItemOutcome)
	MaxTransactions int // Per owner; 0 means no limit
	Workers         int // Owners processed in parallel; 0 uses the engine setting
}

// BatchSummary aggregates the batch results of several owners.
type BatchSummary struct {
	RunID          string
	Results        []*BatchResult // Sorted by owner
	Updated        int
	Considered     int
	Failed         int
	ProcessingTime time.Duration
}

// ApplyRulesToAllTransactions applies rules to up to maxTransactions of
// owner's uncategorized transactions, oldest first. A zero limit means all.
// Transactions that fail on their own data are recorded in the result's
// Errors and counted as considered; only store failures abort the batch.
func (e *Engine) ApplyRulesToAllTransactions(ctx context.Context, owner string, maxTransactions int) (*BatchResult, error) {
	return e.applyOwner(ctx, uuid.NewString(), owner, maxTransactions, nil)
}

// ApplyRulesForOwners runs ApplyRulesToAllTransactions for each owner on a
// bounded pool of workers. An empty owner list means every owner the store
// knows about.
func (e *Engine) ApplyRulesForOwners(ctx context.Context, owners []string, opts BatchOptions) (*BatchSummary, error) {
	startTime := e.now()
	runID := uuid.NewString()

	if len(owners) == 0 {
		var err error
		owners, err = e.store.ListOwners(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list owners: %w", err)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = e.cfg.Workers
	}

	slog.Info("Starting batch rule application",
		"run_id", runID,
		"owners", len(owners),
		"workers", workers,
		"max_transactions", opts.MaxTransactions)

	var (
		mu      sync.Mutex
		results = make([]*BatchResult, 0, len(owners))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, owner := range owners {
		g.Go(func() error {
			result, err := e.applyOwner(gctx, runID, owner, opts.MaxTransactions, opts.Progress)
			if err != nil {
				return fmt.Errorf("owner %s: %w", owner, err)
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()

	slices.SortFunc(results, func(a, b *BatchResult) int {
		return strings.Compare(a.Owner, b.Owner)
	})

	summary := &BatchSummary{
		RunID:   runID,
		Results: results,
	}
	for _, r := range results {
		summary.Updated += r.Updated
		summary.Considered += r.Considered
		summary.Failed += len(r.Errors)
	}
	summary.ProcessingTime = e.now().Sub(startTime)

	if waitErr != nil {
		return summary, waitErr
	}

	slog.Info("Batch rule application complete",
		"run_id", runID,
		"owners", len(results),
		"updated", summary.Updated,
		"considered", summary.Considered,
		"failed", summary.Failed,
		"duration", summary.ProcessingTime)

	return summary, nil
}

func (e *Engine) applyOwner(ctx context.Context, runID, owner string, maxTransactions int, progress func(ItemOutcome)) (*BatchResult, error) {
	startTime := e.now()

	if strings.TrimSpace(owner) == "" {
		return nil, common.InvalidInput("owner is required")
	}
	if maxTransactions < 0 {
		return nil, common.InvalidInput("max transactions must not be negative, got %d", maxTransactions)
	}

	ids, err := e.store.UncategorizedTransactionIDs(ctx, owner, maxTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to get uncategorized transactions: %w", err)
	}

	result := &BatchResult{
		RunID: runID,
		Owner: owner,
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Considered++
		outcome := ItemOutcome{Owner: owner, TransactionID: id}

		ruleID, err := e.applyByID(ctx, owner, id)
		switch {
		case err == nil:
			if ruleID != 0 {
				result.Updated++
				outcome.Applied = true
				outcome.RuleID = ruleID
			}
		case isItemError(err):
			slog.Warn("Skipping transaction",
				"run_id", runID,
				"owner", owner,
				"transaction_id", id,
				"error", err)
			result.Errors = append(result.Errors, ItemError{TransactionID: id, Err: err})
			outcome.Err = err
		default:
			return result, err
		}

		if progress != nil {
			progress(outcome)
		}
	}

	result.Duration = e.now().Sub(startTime)

	slog.Info("Applied rules",
		"run_id", runID,
		"owner", owner,
		"updated", result.Updated,
		"considered", result.Considered,
		"errors", len(result.Errors))

	return result, nil
}

// applyByID loads one transaction and applies the best rule, returning the
// applied rule's ID or 0.
func (e *Engine) applyByID(ctx context.Context, owner, id string) (int64, error) {
	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return 0, err
	}
	if txn.Owner != owner {
		return 0, common.InvalidInput("transaction %s belongs to %s", id, txn.Owner)
	}

	rule, err := e.ApplyBestMatchingRule(ctx, txn)
	if err != nil || rule == nil {
		return 0, err
	}
	return rule.ID, nil
}

// isItemError reports whether err concerns only the transaction at hand:
// malformed data, or a transaction deleted after it was listed.
func isItemError(err error) bool {
	return errors.Is(err, common.ErrInvalidInput) || errors.Is(err, common.ErrNotFound)
}
