package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/model"
	"github.com/shopspring/decimal"
)

const ruleColumns = `id, owner, tokens, amount, currency, category, payee,
	specificity, usage_count, accuracy, created_at, updated_at, last_used_at`

// UpsertRule inserts a rule or refreshes the existing row with the same
// (owner, tokens, amount, currency) key. On refresh only category, payee,
// updated_at and last_used_at change; counters and specificity are kept.
func (s *SQLiteStorage) UpsertRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	now := rule.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	created := rule.CreatedAt
	if created.IsZero() {
		created = now
	}
	key := rule.Key()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categorization_rules (
				owner, tokens, amount, currency, category, payee,
				specificity, usage_count, accuracy, created_at, updated_at, last_used_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, NULL)
			ON CONFLICT(owner, tokens, amount, currency) DO UPDATE SET
				category = excluded.category,
				payee = excluded.payee,
				updated_at = excluded.updated_at,
				last_used_at = excluded.updated_at
		`,
			key.Owner, key.Tokens, key.Amount, key.Currency, rule.Category, rule.Payee,
			rule.Specificity, rule.Accuracy, formatTime(created), formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert rule: %w", err)
		}

		stored, err := scanRule(tx.QueryRowContext(ctx, `
			SELECT `+ruleColumns+`
			FROM categorization_rules
			WHERE owner = ? AND tokens = ? AND amount = ? AND currency = ?
		`, key.Owner, key.Tokens, key.Amount, key.Currency))
		if err != nil {
			return fmt.Errorf("failed to reload rule: %w", err)
		}

		*rule = *stored
		return nil
	})
}

// GetRule retrieves one of owner's rules by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, owner string, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM categorization_rules
		WHERE owner = ? AND id = ?
	`, owner, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns all of owner's rules, most used first.
func (s *SQLiteStorage) ListRules(ctx context.Context, owner string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return nil, err
	}

	return s.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM categorization_rules
		WHERE owner = ?
		ORDER BY usage_count DESC, created_at DESC, id ASC
	`, owner)
}

// CandidateRules returns owner's rules that could match a transaction in
// currency: those without a currency and those with the same one.
func (s *SQLiteStorage) CandidateRules(ctx context.Context, owner, currency string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return nil, err
	}

	return s.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM categorization_rules
		WHERE owner = ? AND (currency = '' OR currency = ?)
		ORDER BY id ASC
	`, owner, strings.ToUpper(strings.TrimSpace(currency)))
}

// DeleteStaleRules removes owner's rules used fewer than minUsage times whose
// last use (or creation, if never used) is before cutoff. The staleness test
// and the delete are one statement, so a rule whose last_used_at was just
// bumped by a concurrent application survives.
func (s *SQLiteStorage) DeleteStaleRules(ctx context.Context, owner string, cutoff time.Time, minUsage int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return 0, err
	}

	c := formatTime(cutoff)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM categorization_rules
		WHERE owner = ?
			AND usage_count < ?
			AND (
				(last_used_at IS NOT NULL AND last_used_at < ?)
				OR (last_used_at IS NULL AND created_at < ?)
			)
	`, owner, minUsage, c, c)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale rules: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// RuleStats aggregates owner's rules. TopRules holds at most topN rules,
// most used first.
func (s *SQLiteStorage) RuleStats(ctx context.Context, owner string, topN int) (*model.RuleStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return nil, err
	}

	var stats model.RuleStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(usage_count), 0),
			COALESCE(AVG(usage_count), 0),
			COALESCE(AVG(accuracy), 0)
		FROM categorization_rules
		WHERE owner = ?
	`, owner).Scan(&stats.RuleCount, &stats.TotalUsage, &stats.AverageUsage, &stats.AverageAccuracy)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate rules: %w", err)
	}

	if topN > 0 && stats.RuleCount > 0 {
		top, err := s.queryRules(ctx, `
			SELECT `+ruleColumns+`
			FROM categorization_rules
			WHERE owner = ?
			ORDER BY usage_count DESC, last_used_at DESC, id ASC
			LIMIT ?
		`, owner, topN)
		if err != nil {
			return nil, err
		}
		stats.TopRules = top
	}

	return &stats, nil
}

// SetRuleAccuracy overwrites the accuracy of one of owner's rules.
func (s *SQLiteStorage) SetRuleAccuracy(ctx context.Context, owner string, id int64, accuracy float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(owner, "owner"); err != nil {
		return err
	}
	if accuracy < 0 || accuracy > 1 {
		return fmt.Errorf("%w: accuracy must be between 0 and 1", ErrInvalidRule)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE categorization_rules
		SET accuracy = ?, updated_at = ?
		WHERE owner = ? AND id = ?
	`, accuracy, formatTime(time.Now()), owner, id)
	if err != nil {
		return fmt.Errorf("failed to update rule accuracy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		rule       model.Rule
		tokens     string
		amount     string
		lastUsedAt sql.NullTime
	)

	err := row.Scan(
		&rule.ID, &rule.Owner, &tokens, &amount, &rule.Currency, &rule.Category, &rule.Payee,
		&rule.Specificity, &rule.UsageCount, &rule.Accuracy,
		&rule.CreatedAt, &rule.UpdatedAt, &lastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Tokens = model.ParseTokenSet(tokens)
	if amount != "" {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d has malformed amount %q", common.ErrDatabaseCorrupted, rule.ID, amount)
		}
		rule.Amount = decimal.NewNullDecimal(d)
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	rule.LastUsedAt = nullTimeToPtr(lastUsedAt)

	return &rule, nil
}
