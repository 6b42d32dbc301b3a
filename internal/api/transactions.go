package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Veraticus/bankflow/internal/model"
)

const transactionsPath = "/transactions"

// ListTransactions returns every transaction of the user.
func (c *Client) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	var out struct {
		Transactions []model.Transaction `json:"transactions"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: transactionsPath, resource: resourceTransactions, out: &out}); err != nil {
		return nil, err
	}
	if out.Transactions == nil {
		out.Transactions = []model.Transaction{}
	}
	return out.Transactions, nil
}

// CreateTransaction stores a new transaction and returns it with its backend id.
func (c *Client) CreateTransaction(ctx context.Context, txn model.Transaction) (*model.Transaction, error) {
	txn.ID = ""
	var out model.Transaction
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     transactionsPath,
		resource: resourceTransactions,
		body:     txn,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTransaction applies a partial update and returns the stored result.
func (c *Client) UpdateTransaction(ctx context.Context, id string, patch model.TransactionPatch) (*model.Transaction, error) {
	var out model.Transaction
	err := c.do(ctx, request{
		method:   http.MethodPut,
		path:     transactionsPath + "/" + url.PathEscape(id),
		resource: resourceTransactions,
		body:     patch,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTransaction removes a transaction.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method:   http.MethodDelete,
		path:     transactionsPath + "/" + url.PathEscape(id),
		resource: resourceTransactions,
	})
}

// ApplyCategory sets a category on baseID and, for ScopeSimilar, on every
// transaction the backend considers alike.
func (c *Client) ApplyCategory(ctx context.Context, baseID string, apply model.CategoryApply) (*model.CategoryApplyResult, error) {
	var out model.CategoryApplyResult
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     transactionsPath + "/" + url.PathEscape(baseID) + "/apply-category",
		resource: resourceTransactions,
		body:     apply,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
