package model

import (
	"fmt"
	"math"
)

// Phase is the coarse, server-reported status of an import job.
type Phase string

// Known phases. The server may report others; only PhaseCompleted carries meaning.
const (
	PhaseStarting   Phase = "starting"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// ImportJob is a server-tracked asynchronous bank import as observed by the client.
// The client never writes job state; every field comes from a poll response.
type ImportJob struct {
	Error           *string `json:"error,omitempty"`
	EtaMs           *int64  `json:"etaMs,omitempty"`
	JobID           string  `json:"jobId"`
	AccountID       string  `json:"accountId,omitempty"`
	Phase           Phase   `json:"phase"`
	Total           int     `json:"total"`
	Processed       int     `json:"processed"`
	Imported        int     `json:"imported"`
	DuplicatesCount int     `json:"duplicatesCount"`
	StartedAt       int64   `json:"startedAt,omitempty"`
	UpdatedAt       int64   `json:"updatedAt,omitempty"`
	Done            bool    `json:"done"`
}

// Percent returns the job's completion percentage.
func (j ImportJob) Percent() float64 {
	return Percent(j.Processed, j.Total)
}

// Failed reports whether the job reached a terminal state with an error.
func (j ImportJob) Failed() bool {
	return j.Done && j.Error != nil && *j.Error != ""
}

// ErrorMessage returns the job error or an empty string.
func (j ImportJob) ErrorMessage() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// DisplayPhase returns the phase as shown to users.
func (j ImportJob) DisplayPhase() string {
	if j.Phase == PhaseCompleted {
		return "Completed"
	}
	return string(j.Phase)
}

// Percent computes processed/total as a percentage clamped to [0, 100].
// An unknown total yields 0.
func Percent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return clampPercent(float64(processed) / float64(total) * 100)
}

// AggregatePercent spreads a per-account percentage over a sequence of accounts:
// (index*100 + local) / count. The end of one account and the start of the
// next yield the same value.
func AggregatePercent(index, count int, local float64) float64 {
	if count <= 0 {
		return 0
	}
	local = clampPercent(local)
	return clampPercent((float64(index)*100 + local) / float64(count))
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// ImportRange narrows an import to a date window.
type ImportRange struct {
	DateFrom    string `json:"date_from,omitempty"`
	DateTo      string `json:"date_to,omitempty"`
	Incremental *bool  `json:"incremental,omitempty"`
}

// UsedRange echoes the window the server actually imported.
type UsedRange struct {
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
}

// ImportStart is the response to an asynchronous import request.
type ImportStart struct {
	UsedRange   *UsedRange `json:"usedRange,omitempty"`
	Incremental *bool      `json:"incremental,omitempty"`
	Message     string     `json:"message,omitempty"`
	JobID       string     `json:"jobId"`
	Phase       Phase      `json:"phase"`
	Total       int        `json:"total"`
	Async       bool       `json:"async"`
}

// StartedJob is one job launched by an auto sync.
type StartedJob struct {
	AccountID string `json:"accountId"`
	JobID     string `json:"jobId"`
	Total     int    `json:"total"`
}

// AutoSyncResult lists the jobs an auto sync launched.
type AutoSyncResult struct {
	Started []StartedJob `json:"started"`
	Count   int          `json:"count"`
}

// AccountQuota is the per-account import allowance for today.
type AccountQuota struct {
	AccountID string `json:"accountId"`
	Calls     int    `json:"calls"`
	Remaining int    `json:"remaining"`
}

// SyncQuota reports how many imports remain today.
type SyncQuota struct {
	Accounts  []AccountQuota `json:"accounts"`
	SoftLimit int            `json:"softLimit"`
}

// Remaining returns the largest allowance left on any account, or -1 when
// no account is known.
func (q SyncQuota) Remaining() int {
	best := -1
	for _, a := range q.Accounts {
		if a.Remaining > best {
			best = a.Remaining
		}
	}
	return best
}

// FormatETA renders a server ETA as "42s" or "3m 5s". Unknown ETAs render empty.
func FormatETA(etaMs *int64) string {
	if etaMs == nil || *etaMs < 0 {
		return ""
	}
	sec := int64(math.Round(float64(*etaMs) / 1000))
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	return fmt.Sprintf("%dm %ds", sec/60, sec%60)
}
