package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/cumin/internal/model"
)

// ListCategories returns every category owner has used, with how many
// transactions carry it and how many rules produce it, ordered by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context, owner string) ([]model.CategoryUsage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return nil, err
	}

	query := `
		SELECT name,
			SUM(CASE WHEN src = 'txn' AND source = 'MANUAL' THEN 1 ELSE 0 END),
			SUM(CASE WHEN src = 'txn' AND source = 'RULE' THEN 1 ELSE 0 END),
			SUM(CASE WHEN src = 'rule' THEN 1 ELSE 0 END)
		FROM (
			SELECT category AS name, category_source AS source, 'txn' AS src FROM transactions
			WHERE owner = ? AND COALESCE(category, '') != ''
			UNION ALL
			SELECT category AS name, '' AS source, 'rule' AS src FROM categorization_rules
			WHERE owner = ?
		)
		GROUP BY name
		ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, owner, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.CategoryUsage
	for rows.Next() {
		var cat model.CategoryUsage
		if err := rows.Scan(&cat.Name, &cat.Manual, &cat.ByRule, &cat.Rules); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "owner", owner, "count", len(categories))
	return categories, nil
}
