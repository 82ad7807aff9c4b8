package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/cumin/internal/model"
	"github.com/shopspring/decimal"
)

// BaseDate is the date of the first transaction a builder creates. Each
// further transaction is one day later.
var BaseDate = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// TransactionBuilder provides a fluent interface for constructing test
// transactions for one owner. IDs are "<owner>-<n>", starting at 1.
type TransactionBuilder struct {
	owner string
	txns  []model.Transaction
}

// NewTransactionBuilder creates a builder for owner's transactions.
func NewTransactionBuilder(owner string) *TransactionBuilder {
	return &TransactionBuilder{owner: owner}
}

// With adds an uncategorized transaction. amount must be a valid decimal.
func (b *TransactionBuilder) With(description, amount, currency string) *TransactionBuilder {
	n := len(b.txns) + 1
	b.txns = append(b.txns, model.Transaction{
		ID:          fmt.Sprintf("%s-%d", b.owner, n),
		Owner:       b.owner,
		Date:        BaseDate.AddDate(0, 0, n-1),
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Currency:    currency,
		AccountID:   "checking",
	})
	return b
}

// WithCategorized adds a transaction that already has a manual category.
func (b *TransactionBuilder) WithCategorized(description, amount, currency, category string) *TransactionBuilder {
	b.With(description, amount, currency)
	b.txns[len(b.txns)-1].Category = category
	return b
}

// WithMany adds count uncategorized transactions with distinct descriptions.
func (b *TransactionBuilder) WithMany(count int, currency string) *TransactionBuilder {
	for i := 0; i < count; i++ {
		b.With(fmt.Sprintf("Unknown merchant %c%c", 'a'+i%26, 'a'+i/26), fmt.Sprintf("%d.00", 100+i), currency)
	}
	return b
}

// Build returns the constructed transactions.
func (b *TransactionBuilder) Build() []model.Transaction {
	out := make([]model.Transaction, len(b.txns))
	copy(out, b.txns)
	return out
}
