package testutil

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/bankflow/internal/model"
)

// TxnOption customizes a fixture transaction.
type TxnOption func(*model.Transaction)

// WithTitle sets the title.
func WithTitle(title string) TxnOption {
	return func(t *model.Transaction) { t.Title = title }
}

// WithAmount sets the amount from a decimal string.
func WithAmount(amount string) TxnOption {
	return func(t *model.Transaction) { t.Amount = decimal.RequireFromString(amount) }
}

// WithCategory sets the category.
func WithCategory(category string) TxnOption {
	return func(t *model.Transaction) { t.Category = &category }
}

// Manual marks the transaction as manually entered.
func Manual() TxnOption {
	return func(t *model.Transaction) { t.Source = model.SourceManual }
}

// NewTransaction builds a bank transaction with sensible defaults.
func NewTransaction(id string, opts ...TxnOption) model.Transaction {
	txn := model.Transaction{
		ID:               id,
		Type:             "expense",
		Title:            "Transaction " + id,
		Amount:           decimal.RequireFromString("10.00"),
		OriginalAmount:   decimal.RequireFromString("10.00"),
		OriginalCurrency: "EUR",
		Date:             "2024-03-01",
		Time:             "12:00",
		Source:           model.SourceBank,
	}
	for _, opt := range opts {
		opt(&txn)
	}
	return txn
}

// NewTransactions builds n transactions with ids "<prefix>1".."<prefix>n".
func NewTransactions(prefix string, n int) []model.Transaction {
	txns := make([]model.Transaction, n)
	for i := range txns {
		txns[i] = NewTransaction(fmt.Sprintf("%s%d", prefix, i+1))
	}
	return txns
}
