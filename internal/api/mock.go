package api

import (
	"context"
	"sync"

	"github.com/Veraticus/bankflow/internal/model"
)

// MockClient is a Backend for tests. Each method calls its Fn field when set
// and otherwise returns an empty success. Calls are recorded.
type MockClient struct {
	InstitutionsFn      func(ctx context.Context, country string) ([]model.Institution, error)
	StartLinkFn         func(ctx context.Context, req model.LinkRequest) (*model.LinkStart, error)
	AccountsFn          func(ctx context.Context) ([]string, error)
	StartImportFn       func(ctx context.Context, accountID string, rng model.ImportRange) (*model.ImportStart, error)
	ImportProgressFn    func(ctx context.Context, jobID string) (*model.ImportJob, error)
	AutoSyncFn          func(ctx context.Context, minAgeMinutes int) (*model.AutoSyncResult, error)
	QuotaFn             func(ctx context.Context) (*model.SyncQuota, error)
	ListTransactionsFn  func(ctx context.Context) ([]model.Transaction, error)
	CreateTransactionFn func(ctx context.Context, txn model.Transaction) (*model.Transaction, error)
	UpdateTransactionFn func(ctx context.Context, id string, patch model.TransactionPatch) (*model.Transaction, error)
	DeleteTransactionFn func(ctx context.Context, id string) error
	ApplyCategoryFn     func(ctx context.Context, baseID string, apply model.CategoryApply) (*model.CategoryApplyResult, error)
	ListCategoriesFn    func(ctx context.Context) ([]model.CustomCategory, error)
	CreateCategoryFn    func(ctx context.Context, name, iconPath string) (*model.CustomCategory, error)
	DeleteCategoryFn    func(ctx context.Context, id string) error
	LoginFn             func(ctx context.Context, email, password string) (*AuthResponse, error)
	RegisterFn          func(ctx context.Context, email, password string) (*AuthResponse, error)
	VerifyFn            func(ctx context.Context) (*model.UserProfile, error)
	LogoutFn            func(ctx context.Context, refreshToken string) error

	calls map[string][]any
	mu    sync.Mutex
}

// NewMockClient creates a new mock backend.
func NewMockClient() *MockClient {
	return &MockClient{calls: map[string][]any{}}
}

func (m *MockClient) record(method string, arg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string][]any{}
	}
	m.calls[method] = append(m.calls[method], arg)
}

// Calls returns the number of times method was called.
func (m *MockClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls[method])
}

// Args returns the recorded primary argument of every call to method.
func (m *MockClient) Args(method string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.calls[method]...)
}

// TotalCalls returns the number of calls across all methods.
func (m *MockClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += len(c)
	}
	return n
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = map[string][]any{}
}

// Institutions implements BankData.
func (m *MockClient) Institutions(ctx context.Context, country string) ([]model.Institution, error) {
	m.record("Institutions", country)
	if m.InstitutionsFn != nil {
		return m.InstitutionsFn(ctx, country)
	}
	return []model.Institution{}, nil
}

// StartLink implements BankData.
func (m *MockClient) StartLink(ctx context.Context, req model.LinkRequest) (*model.LinkStart, error) {
	m.record("StartLink", req)
	if m.StartLinkFn != nil {
		return m.StartLinkFn(ctx, req)
	}
	return &model.LinkStart{}, nil
}

// Accounts implements BankData.
func (m *MockClient) Accounts(ctx context.Context) ([]string, error) {
	m.record("Accounts", nil)
	if m.AccountsFn != nil {
		return m.AccountsFn(ctx)
	}
	return []string{}, nil
}

// StartImport implements BankData.
func (m *MockClient) StartImport(ctx context.Context, accountID string, rng model.ImportRange) (*model.ImportStart, error) {
	m.record("StartImport", accountID)
	if m.StartImportFn != nil {
		return m.StartImportFn(ctx, accountID, rng)
	}
	return &model.ImportStart{JobID: "job-" + accountID, Phase: model.PhaseStarting, Async: true}, nil
}

// ImportProgress implements ProgressReader.
func (m *MockClient) ImportProgress(ctx context.Context, jobID string) (*model.ImportJob, error) {
	m.record("ImportProgress", jobID)
	if m.ImportProgressFn != nil {
		return m.ImportProgressFn(ctx, jobID)
	}
	return &model.ImportJob{JobID: jobID, Phase: model.PhaseCompleted, Done: true}, nil
}

// AutoSync implements BankData.
func (m *MockClient) AutoSync(ctx context.Context, minAgeMinutes int) (*model.AutoSyncResult, error) {
	m.record("AutoSync", minAgeMinutes)
	if m.AutoSyncFn != nil {
		return m.AutoSyncFn(ctx, minAgeMinutes)
	}
	return &model.AutoSyncResult{Started: []model.StartedJob{}}, nil
}

// Quota implements BankData.
func (m *MockClient) Quota(ctx context.Context) (*model.SyncQuota, error) {
	m.record("Quota", nil)
	if m.QuotaFn != nil {
		return m.QuotaFn(ctx)
	}
	return &model.SyncQuota{}, nil
}

// ListTransactions implements Transactions.
func (m *MockClient) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	m.record("ListTransactions", nil)
	if m.ListTransactionsFn != nil {
		return m.ListTransactionsFn(ctx)
	}
	return []model.Transaction{}, nil
}

// CreateTransaction implements Transactions.
func (m *MockClient) CreateTransaction(ctx context.Context, txn model.Transaction) (*model.Transaction, error) {
	m.record("CreateTransaction", txn)
	if m.CreateTransactionFn != nil {
		return m.CreateTransactionFn(ctx, txn)
	}
	return &txn, nil
}

// UpdateTransaction implements Transactions.
func (m *MockClient) UpdateTransaction(ctx context.Context, id string, patch model.TransactionPatch) (*model.Transaction, error) {
	m.record("UpdateTransaction", id)
	if m.UpdateTransactionFn != nil {
		return m.UpdateTransactionFn(ctx, id, patch)
	}
	txn := model.Transaction{ID: id}
	patch.Apply(&txn)
	return &txn, nil
}

// DeleteTransaction implements Transactions.
func (m *MockClient) DeleteTransaction(ctx context.Context, id string) error {
	m.record("DeleteTransaction", id)
	if m.DeleteTransactionFn != nil {
		return m.DeleteTransactionFn(ctx, id)
	}
	return nil
}

// ApplyCategory implements Transactions.
func (m *MockClient) ApplyCategory(ctx context.Context, baseID string, apply model.CategoryApply) (*model.CategoryApplyResult, error) {
	m.record("ApplyCategory", baseID)
	if m.ApplyCategoryFn != nil {
		return m.ApplyCategoryFn(ctx, baseID, apply)
	}
	return &model.CategoryApplyResult{Updated: 1}, nil
}

// ListCategories implements Categories.
func (m *MockClient) ListCategories(ctx context.Context) ([]model.CustomCategory, error) {
	m.record("ListCategories", nil)
	if m.ListCategoriesFn != nil {
		return m.ListCategoriesFn(ctx)
	}
	return []model.CustomCategory{}, nil
}

// CreateCategory implements Categories.
func (m *MockClient) CreateCategory(ctx context.Context, name, iconPath string) (*model.CustomCategory, error) {
	m.record("CreateCategory", name)
	if m.CreateCategoryFn != nil {
		return m.CreateCategoryFn(ctx, name, iconPath)
	}
	return &model.CustomCategory{Name: name, IconPath: iconPath}, nil
}

// DeleteCategory implements Categories.
func (m *MockClient) DeleteCategory(ctx context.Context, id string) error {
	m.record("DeleteCategory", id)
	if m.DeleteCategoryFn != nil {
		return m.DeleteCategoryFn(ctx, id)
	}
	return nil
}

// Login implements Auth.
func (m *MockClient) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	m.record("Login", email)
	if m.LoginFn != nil {
		return m.LoginFn(ctx, email, password)
	}
	return &AuthResponse{AccessToken: "access", RefreshToken: "refresh", User: model.UserProfile{Email: email}}, nil
}

// Register implements Auth.
func (m *MockClient) Register(ctx context.Context, email, password string) (*AuthResponse, error) {
	m.record("Register", email)
	if m.RegisterFn != nil {
		return m.RegisterFn(ctx, email, password)
	}
	return &AuthResponse{AccessToken: "access", RefreshToken: "refresh", User: model.UserProfile{Email: email}}, nil
}

// Verify implements Auth.
func (m *MockClient) Verify(ctx context.Context) (*model.UserProfile, error) {
	m.record("Verify", nil)
	if m.VerifyFn != nil {
		return m.VerifyFn(ctx)
	}
	return &model.UserProfile{}, nil
}

// Logout implements Auth.
func (m *MockClient) Logout(ctx context.Context, refreshToken string) error {
	m.record("Logout", refreshToken)
	if m.LogoutFn != nil {
		return m.LogoutFn(ctx, refreshToken)
	}
	return nil
}

// Ensure MockClient implements Backend.
var _ Backend = (*MockClient)(nil)
