package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Source tags where a transaction came from.
type Source string

// Transaction sources.
const (
	SourceBank   Source = "bank"
	SourceManual Source = "manual"
)

// CategorySource records how a category was assigned.
type CategorySource string

// Category sources as reported by the backend.
const (
	CategorySourceAuto     CategorySource = "auto"
	CategorySourceManual   CategorySource = "manual"
	CategorySourceRule     CategorySource = "rule"
	CategorySourceLLM      CategorySource = "llm"
	CategorySourceOverride CategorySource = "override"
)

// legacyIDModulus bounds the historical numeric id.
const legacyIDModulus = 1_000_000

func init() {
	// The backend speaks JSON numbers for amounts.
	decimal.MarshalJSONWithoutQuotes = true
}

// Transaction is the client-side projection of a backend transaction.
// ID is the backend identifier and the only key used for identity.
type Transaction struct {
	Amount             decimal.Decimal `json:"amount"`
	OriginalAmount     decimal.Decimal `json:"originalAmount"`
	Category           *string         `json:"category,omitempty"`
	CategoryConfidence *float64        `json:"categoryConfidence,omitempty"`
	ID                 string          `json:"_id,omitempty"`
	UserID             string          `json:"userId,omitempty"`
	Type               string          `json:"type"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Notes              string          `json:"notes,omitempty"`
	BankAccountID      string          `json:"bankAccountId,omitempty"`
	OriginalCurrency   string          `json:"originalCurrency"`
	Date               string          `json:"date"`
	Time               string          `json:"time"`
	Img                string          `json:"img"`
	Color              string          `json:"color"`
	Source             Source          `json:"source,omitempty"`
	CategorySource     CategorySource  `json:"categorySource,omitempty"`
	CategoryReason     string          `json:"categoryReason,omitempty"`
	CreatedAt          string          `json:"createdAt,omitempty"`
	UpdatedAt          string          `json:"updatedAt,omitempty"`
}

// LegacyID returns the numeric id older links were built from.
// It compresses the backend id into a bounded range and collides; it must
// never be used to deduplicate or key transactions.
func (t Transaction) LegacyID() int {
	return LegacyID(t.ID)
}

// LegacyID derives the numeric id for a backend identifier, or 0 when the
// identifier is not hexadecimal.
func LegacyID(id string) int {
	if id == "" {
		return 0
	}
	n, ok := new(big.Int).SetString(id, 16)
	if !ok {
		return 0
	}
	return int(n.Mod(n, big.NewInt(legacyIDModulus)).Int64())
}

// IsBank reports whether the transaction was imported from a bank.
func (t Transaction) IsBank() bool {
	return t.Source == SourceBank
}

// CategoryName returns the category or an empty string when unset.
func (t Transaction) CategoryName() string {
	if t.Category == nil {
		return ""
	}
	return *t.Category
}

// TransactionPatch is a partial update; nil fields are left untouched.
type TransactionPatch struct {
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Type           *string          `json:"type,omitempty"`
	Title          *string          `json:"title,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
	Date           *string          `json:"date,omitempty"`
	Time           *string          `json:"time,omitempty"`
	Img            *string          `json:"img,omitempty"`
	Color          *string          `json:"color,omitempty"`
	CategorySource *CategorySource  `json:"categorySource,omitempty"`
}

// Apply copies the set fields of the patch onto t.
func (p TransactionPatch) Apply(t *Transaction) {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		c := *p.Category
		t.Category = &c
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Time != nil {
		t.Time = *p.Time
	}
	if p.Img != nil {
		t.Img = *p.Img
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.CategorySource != nil {
		t.CategorySource = *p.CategorySource
	}
}

// ApplyScope selects how far a category change propagates.
type ApplyScope string

// Apply scopes.
const (
	ScopeOne     ApplyScope = "one"
	ScopeSimilar ApplyScope = "similar"
)

// CategoryApply is the body of a bulk category change.
type CategoryApply struct {
	CreateUserPattern *bool      `json:"createUserPattern,omitempty"`
	Category          string     `json:"category"`
	Scope             ApplyScope `json:"scope"`
	Color             string     `json:"color,omitempty"`
	Img               string     `json:"img,omitempty"`
}

// CategoryApplyResult reports how many transactions a bulk change touched.
type CategoryApplyResult struct {
	Message string `json:"message,omitempty"`
	Updated int    `json:"updated"`
}
