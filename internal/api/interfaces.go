package api

import (
	"context"

	"github.com/Veraticus/bankflow/internal/model"
)

// ProgressReader reads import job state.
type ProgressReader interface {
	ImportProgress(ctx context.Context, jobID string) (*model.ImportJob, error)
}

// BankData is the /api/bankdata surface.
type BankData interface {
	ProgressReader
	Institutions(ctx context.Context, country string) ([]model.Institution, error)
	StartLink(ctx context.Context, req model.LinkRequest) (*model.LinkStart, error)
	Accounts(ctx context.Context) ([]string, error)
	StartImport(ctx context.Context, accountID string, rng model.ImportRange) (*model.ImportStart, error)
	AutoSync(ctx context.Context, minAgeMinutes int) (*model.AutoSyncResult, error)
	Quota(ctx context.Context) (*model.SyncQuota, error)
}

// Transactions is the /api/transactions surface.
type Transactions interface {
	ListTransactions(ctx context.Context) ([]model.Transaction, error)
	CreateTransaction(ctx context.Context, txn model.Transaction) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch model.TransactionPatch) (*model.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	ApplyCategory(ctx context.Context, baseID string, apply model.CategoryApply) (*model.CategoryApplyResult, error)
}

// Categories is the /api/categories surface.
type Categories interface {
	ListCategories(ctx context.Context) ([]model.CustomCategory, error)
	CreateCategory(ctx context.Context, name, iconPath string) (*model.CustomCategory, error)
	DeleteCategory(ctx context.Context, id string) error
}

// Auth is the /api/auth surface.
type Auth interface {
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	Register(ctx context.Context, email, password string) (*AuthResponse, error)
	Verify(ctx context.Context) (*model.UserProfile, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Backend is the whole backend API.
type Backend interface {
	BankData
	Transactions
	Categories
	Auth
}

var _ Backend = (*Client)(nil)
