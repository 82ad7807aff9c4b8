package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/model"
)

// ApplyRule writes the rule's category (and payee, if the transaction has
// none) to an uncategorized transaction and bumps the rule's usage, all in
// one database transaction. On success rule.UsageCount and rule.LastUsedAt
// reflect the stored values.
func (s *SQLiteStorage) ApplyRule(ctx context.Context, transactionID string, rule *model.Rule, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}

	usedAt := formatTime(at)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		// usage_count is incremented in SQL, never read-modify-written.
		result, err := tx.ExecContext(ctx, `
			UPDATE categorization_rules
			SET usage_count = usage_count + 1, last_used_at = ?
			WHERE id = ? AND owner = ?
		`, usedAt, rule.ID, rule.Owner)
		if err != nil {
			return fmt.Errorf("failed to increment rule usage: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("%w: %d", common.ErrRuleNotFound, rule.ID)
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE transactions
			SET category = ?,
				payee = COALESCE(NULLIF(payee, ''), ?),
				category_source = ?,
				rule_id = ?
			WHERE id = ? AND owner = ? AND (category IS NULL OR category = '')
		`, rule.Category, nullString(rule.Payee), string(model.SourceRule), rule.ID, transactionID, rule.Owner)
		if err != nil {
			return fmt.Errorf("failed to assign category: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			return explainUnapplied(ctx, tx, transactionID)
		}

		var lastUsed sql.NullTime
		err = tx.QueryRowContext(ctx, `
			SELECT usage_count, last_used_at FROM categorization_rules WHERE id = ?
		`, rule.ID).Scan(&rule.UsageCount, &lastUsed)
		if err != nil {
			return fmt.Errorf("failed to reload rule usage: %w", err)
		}
		rule.LastUsedAt = nullTimeToPtr(lastUsed)

		return nil
	})
}

// explainUnapplied distinguishes a missing transaction from one that was
// categorized in the meantime.
func explainUnapplied(ctx context.Context, tx *sql.Tx, transactionID string) error {
	var category sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT category FROM transactions WHERE id = ?`, transactionID).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check transaction: %w", err)
	}
	if category.Valid && category.String != "" {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrAlreadyCategorized)
	}
	// Owner mismatch: the rule belongs to someone else.
	return fmt.Errorf("transaction %s: %w: rule owner does not match", transactionID, common.ErrInvalidInput)
}
