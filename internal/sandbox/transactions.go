package sandbox

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/bankflow/internal/model"
)

func (s *Server) listTransactions(c *gin.Context) {
	u := s.currentUser(c)
	s.state.mu.Lock()
	out := slices.Clone(u.transactions)
	s.state.mu.Unlock()
	if out == nil {
		out = []model.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (s *Server) createTransaction(c *gin.Context) {
	var txn model.Transaction
	if err := c.ShouldBindJSON(&txn); err != nil {
		abort(c, http.StatusBadRequest, "Invalid transaction")
		return
	}
	if strings.TrimSpace(txn.Title) == "" {
		abort(c, http.StatusBadRequest, "Title is required")
		return
	}
	if txn.Type != "income" && txn.Type != "expense" {
		abort(c, http.StatusBadRequest, "Type must be income or expense")
		return
	}

	u := s.currentUser(c)
	now := s.cfg.Clock.Now().UTC()

	txn.ID = newID()
	txn.UserID = u.profile.ID
	txn.Source = model.SourceManual
	txn.CreatedAt = now.Format(time.RFC3339)
	txn.UpdatedAt = txn.CreatedAt
	if txn.Date == "" {
		txn.Date = now.Format(dateLayout)
	}
	if txn.OriginalAmount.IsZero() {
		txn.OriginalAmount = txn.Amount
	}
	if txn.Category != nil && txn.CategorySource == "" {
		txn.CategorySource = model.CategorySourceManual
	}

	s.state.mu.Lock()
	u.transactions = append(u.transactions, txn)
	s.state.mu.Unlock()

	c.JSON(http.StatusCreated, txn)
}

func (s *Server) updateTransaction(c *gin.Context) {
	var patch model.TransactionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abort(c, http.StatusBadRequest, "Invalid update")
		return
	}

	u := s.currentUser(c)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	i := u.findTransaction(c.Param("id"))
	if i < 0 {
		abort(c, http.StatusNotFound, "Transaction not found")
		return
	}
	txn := &u.transactions[i]
	patch.Apply(txn)
	if patch.Category != nil && patch.CategorySource == nil {
		txn.CategorySource = model.CategorySourceManual
		txn.CategoryReason = ""
	}
	txn.UpdatedAt = s.cfg.Clock.Now().UTC().Format(time.RFC3339)

	c.JSON(http.StatusOK, *txn)
}

func (s *Server) deleteTransaction(c *gin.Context) {
	u := s.currentUser(c)

	s.state.mu.Lock()
	i := u.findTransaction(c.Param("id"))
	if i >= 0 {
		u.transactions = slices.Delete(u.transactions, i, i+1)
	}
	s.state.mu.Unlock()

	if i < 0 {
		abort(c, http.StatusNotFound, "Transaction not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted"})
}

// applyCategory sets a category on one transaction, or on every transaction
// with the same title when the scope is "similar".
func (s *Server) applyCategory(c *gin.Context) {
	var req model.CategoryApply
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Category) == "" {
		abort(c, http.StatusBadRequest, "category is required")
		return
	}
	if req.Scope == "" {
		req.Scope = model.ScopeOne
	}
	if req.Scope != model.ScopeOne && req.Scope != model.ScopeSimilar {
		abort(c, http.StatusBadRequest, "scope must be one or similar")
		return
	}

	u := s.currentUser(c)
	stamp := s.cfg.Clock.Now().UTC().Format(time.RFC3339)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	base := u.findTransaction(c.Param("id"))
	if base < 0 {
		abort(c, http.StatusNotFound, "Transaction not found")
		return
	}
	title := normalizeTitle(u.transactions[base].Title)

	updated := 0
	for i := range u.transactions {
		txn := &u.transactions[i]
		if i != base && (req.Scope != model.ScopeSimilar || normalizeTitle(txn.Title) != title) {
			continue
		}
		category := req.Category
		txn.Category = &category
		txn.CategorySource = model.CategorySourceOverride
		txn.CategoryReason = "Applied by user"
		if req.Color != "" {
			txn.Color = req.Color
		}
		if req.Img != "" {
			txn.Img = req.Img
		}
		txn.UpdatedAt = stamp
		updated++
	}

	c.JSON(http.StatusOK, model.CategoryApplyResult{Message: "Category applied", Updated: updated})
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func (s *Server) listCategories(c *gin.Context) {
	u := s.currentUser(c)
	s.state.mu.Lock()
	out := slices.Clone(u.categories)
	s.state.mu.Unlock()
	if out == nil {
		out = []model.CustomCategory{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (s *Server) createCategory(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		IconPath string `json:"iconPath"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		abort(c, http.StatusBadRequest, "name is required")
		return
	}

	u := s.currentUser(c)
	stamp := s.cfg.Clock.Now().UTC().Format(time.RFC3339)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	for _, existing := range u.categories {
		if strings.EqualFold(existing.Name, req.Name) {
			abort(c, http.StatusConflict, "Category already exists")
			return
		}
	}
	category := model.CustomCategory{
		ID:        newID(),
		Name:      strings.TrimSpace(req.Name),
		IconPath:  req.IconPath,
		UserID:    u.profile.ID,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	u.categories = append(u.categories, category)

	c.JSON(http.StatusCreated, gin.H{"category": category})
}

func (s *Server) deleteCategory(c *gin.Context) {
	u := s.currentUser(c)
	id := c.Param("id")

	s.state.mu.Lock()
	before := len(u.categories)
	u.categories = slices.DeleteFunc(u.categories, func(cat model.CustomCategory) bool { return cat.ID == id })
	removed := len(u.categories) < before
	s.state.mu.Unlock()

	if !removed {
		abort(c, http.StatusNotFound, "Category not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted"})
}
