package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/service"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, owner, hash, date, description, amount, currency,
	account_id, category, payee, category_source, rule_id, created_at`

// SaveTransactions saves multiple transactions to the database. Transactions
// whose ID or hash already exists are skipped.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	// Validate inputs
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (
				id, owner, hash, date, description, amount, currency,
				account_id, category, payee, category_source, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now()
		for _, txn := range transactions {
			// Generate hash if not already set
			if txn.Hash == "" {
				txn.Hash = txn.GenerateHash()
			}
			created := txn.CreatedAt
			if created.IsZero() {
				created = now
			}

			source := txn.Source
			if txn.IsCategorized() && source == model.SourceNone {
				source = model.SourceManual
			}

			result, err := stmt.ExecContext(ctx,
				txn.ID,
				txn.Owner,
				txn.Hash,
				formatTime(txn.Date),
				txn.Description,
				txn.Amount.String(),
				strings.ToUpper(strings.TrimSpace(txn.Currency)),
				txn.AccountID,
				nullString(txn.Category),
				nullString(txn.Payee),
				string(source),
				formatTime(created),
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}

			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if skipped := len(transactions) - inserted; skipped > 0 {
		slog.Debug("Skipped duplicate transactions", "skipped", skipped)
	}
	return inserted, nil
}

// GetTransaction retrieves a transaction by ID. A stored amount that does
// not parse as a decimal is reported as common.ErrInvalidInput.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
		}
		if errors.Is(err, common.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions returns transactions oldest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, filter.Owner)
	}
	if filter.UncategorizedOnly {
		query += ` AND (category IS NULL OR category = '')`
	}
	query += ` ORDER BY date ASC, created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			if txn == nil {
				return nil, fmt.Errorf("failed to scan transaction: %w", err)
			}
			slog.Warn("Listing transaction with malformed amount", "id", txn.ID, "error", err)
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// UncategorizedTransactionIDs lists owner's uncategorized transactions,
// oldest first. Only IDs are returned so that one malformed row cannot
// fail the listing.
func (s *SQLiteStorage) UncategorizedTransactionIDs(ctx context.Context, owner string, limit int) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(owner, "owner"); err != nil {
		return nil, err
	}

	query := `
		SELECT id FROM transactions
		WHERE owner = ? AND (category IS NULL OR category = '')
		ORDER BY date ASC, created_at ASC, id ASC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uncategorized transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return ids, nil
}

// SetTransactionCategory records a manual categorization. It overwrites
// whatever category the transaction had.
func (s *SQLiteStorage) SetTransactionCategory(ctx context.Context, id, category, payee string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, payee = ?, category_source = ?, rule_id = NULL
		WHERE id = ?
	`, category, nullString(payee), string(model.SourceManual), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// ListOwners returns every owner that has transactions or rules.
func (s *SQLiteStorage) ListOwners(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner FROM transactions
		UNION
		SELECT owner FROM categorization_rules
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owners: %w", err)
	}

	return owners, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn      model.Transaction
		amount   string
		category sql.NullString
		payee    sql.NullString
		source   string
		ruleID   sql.NullInt64
	)

	err := row.Scan(
		&txn.ID, &txn.Owner, &txn.Hash, &txn.Date, &txn.Description, &amount, &txn.Currency,
		&txn.AccountID, &category, &payee, &source, &ruleID, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Date = txn.Date.UTC()
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.Category = category.String
	txn.Payee = payee.String
	txn.Source = model.CategorySource(source)
	txn.RuleID = ruleID.Int64

	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return &txn, common.InvalidInput("transaction %s has malformed amount %q", txn.ID, amount)
	}
	txn.Amount = d

	return &txn, nil
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
