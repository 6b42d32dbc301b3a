package sandbox

import (
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Veraticus/bankflow/internal/cooldown"
	"github.com/Veraticus/bankflow/internal/model"
)

// defaultMinAgeMinutes applies when an auto sync request names no threshold.
const defaultMinAgeMinutes = 60

var institutions = []model.Institution{
	{ID: "SANDBOXFINANCE_SFIN0000", Name: "Sandbox Finance", Countries: []string{"GB", "DE", "FR"}},
	{ID: "NORDBANK_NRDBDEFF", Name: "Nordbank", Countries: []string{"DE"}},
	{ID: "BANQUE_EXEMPLE_BEXPFRPP", Name: "Banque Exemple", Countries: []string{"FR"}},
	{ID: "HARBOUR_HRBRGB2L", Name: "Harbour Bank", Countries: []string{"GB"}},
}

func (s *Server) institutions(c *gin.Context) {
	country := strings.ToUpper(c.Query("country"))
	out := make([]model.Institution, 0, len(institutions))
	for _, inst := range institutions {
		if country == "" || slices.Contains(inst.Countries, country) {
			out = append(out, inst)
		}
	}
	c.JSON(http.StatusOK, gin.H{"institutions": out})
}

// startLink links a new account right away; the sandbox has no consent step.
func (s *Server) startLink(c *gin.Context) {
	var req model.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.InstitutionID == "" {
		abort(c, http.StatusBadRequest, "institutionId is required")
		return
	}

	known := false
	for _, inst := range institutions {
		known = known || inst.ID == req.InstitutionID
	}
	if !known {
		abort(c, http.StatusNotFound, "Institution not found")
		return
	}

	requisition := uuid.NewString()
	account := "acc-" + newID()[:12]

	u := s.currentUser(c)
	s.state.mu.Lock()
	u.accounts = append(u.accounts, account)
	s.state.mu.Unlock()

	c.JSON(http.StatusOK, model.LinkStart{
		Link:          "https://sandbox.invalid/link/" + requisition,
		RequisitionID: requisition,
		InstitutionID: req.InstitutionID,
	})
}

func (s *Server) accounts(c *gin.Context) {
	u := s.currentUser(c)
	s.state.mu.Lock()
	accounts := append([]string{}, u.accounts...)
	s.state.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

type importRequest struct {
	Incremental *bool  `json:"incremental"`
	AccountID   string `json:"accountId"`
	DateFrom    string `json:"date_from"`
	DateTo      string `json:"date_to"`
	Mode        string `json:"mode"`
}

func (s *Server) startImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" {
		abort(c, http.StatusBadRequest, "accountId is required")
		return
	}
	if req.Mode != "" && req.Mode != "async" {
		abort(c, http.StatusBadRequest, "Only async imports are supported")
		return
	}

	u := s.currentUser(c)
	now := s.cfg.Clock.Now()

	s.state.mu.Lock()
	if !u.hasAccount(req.AccountID) {
		s.state.mu.Unlock()
		abort(c, http.StatusNotFound, "Account not found")
		return
	}
	if u.callsToday(req.AccountID, now) >= s.cfg.SoftLimit {
		s.state.mu.Unlock()
		s.limitReached(c, now)
		return
	}
	incremental := req.Incremental != nil && *req.Incremental
	rng, err := s.importWindow(u, req.AccountID, req.DateFrom, req.DateTo, incremental, now)
	if err != nil {
		s.state.mu.Unlock()
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	j, rows := s.launch(u, req.AccountID, rng, now)
	s.state.mu.Unlock()

	c.JSON(http.StatusAccepted, model.ImportStart{
		Async:       true,
		JobID:       j.JobID,
		Phase:       model.PhaseStarting,
		Total:       len(rows),
		UsedRange:   &model.UsedRange{DateFrom: rng.from, DateTo: rng.to},
		Incremental: &incremental,
		Message:     "Import started",
	})
}

func (s *Server) limitReached(c *gin.Context, now time.Time) {
	wait := untilNextDay(now)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"message":           cooldown.DailyLimitMessage + ". Try again tomorrow.",
		"retryAfterSeconds": math.Ceil(wait.Seconds()),
	})
}

func (s *Server) importProgress(c *gin.Context) {
	u := s.currentUser(c)

	s.state.mu.Lock()
	j, ok := s.state.jobs[c.Param("jobId")]
	var snapshot model.ImportJob
	if ok && j.userID == u.profile.ID {
		snapshot = j.ImportJob
	}
	s.state.mu.Unlock()

	if !ok || snapshot.JobID == "" {
		abort(c, http.StatusNotFound, "Job not found")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) autoSync(c *gin.Context) {
	var req struct {
		MinAgeMinutes int `json:"minAgeMinutes"`
	}
	// An empty body means the default threshold.
	_ = c.ShouldBindJSON(&req)
	if req.MinAgeMinutes <= 0 {
		req.MinAgeMinutes = defaultMinAgeMinutes
	}
	minAge := time.Duration(req.MinAgeMinutes) * time.Minute

	u := s.currentUser(c)
	now := s.cfg.Clock.Now()

	s.state.mu.Lock()
	started := []model.StartedJob{}
	for _, account := range u.accounts {
		if last, ok := u.lastSync[account]; ok && now.Sub(last) < minAge {
			continue
		}
		if u.callsToday(account, now) >= s.cfg.SoftLimit {
			continue
		}
		rng, err := s.importWindow(u, account, "", "", true, now)
		if err != nil {
			continue
		}
		j, rows := s.launch(u, account, rng, now)
		started = append(started, model.StartedJob{AccountID: account, JobID: j.JobID, Total: len(rows)})
	}
	s.state.mu.Unlock()

	if len(started) == 0 && len(u.accounts) > 0 && s.allExhausted(u, now) {
		s.limitReached(c, now)
		return
	}
	c.JSON(http.StatusOK, model.AutoSyncResult{Started: started, Count: len(started)})
}

func (s *Server) allExhausted(u *user, now time.Time) bool {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for _, account := range u.accounts {
		if u.callsToday(account, now) < s.cfg.SoftLimit {
			return false
		}
	}
	return true
}

func (s *Server) accountCalls(c *gin.Context) {
	u := s.currentUser(c)
	now := s.cfg.Clock.Now()

	s.state.mu.Lock()
	quota := model.SyncQuota{SoftLimit: s.cfg.SoftLimit, Accounts: []model.AccountQuota{}}
	for _, account := range u.accounts {
		calls := u.callsToday(account, now)
		quota.Accounts = append(quota.Accounts, model.AccountQuota{
			AccountID: account,
			Calls:     calls,
			Remaining: max(s.cfg.SoftLimit-calls, 0),
		})
	}
	s.state.mu.Unlock()

	c.JSON(http.StatusOK, quota)
}
