package sandbox

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/bankflow/internal/model"
)

type dayCount struct {
	day string
	n   int
}

type user struct {
	lastSync     map[string]time.Time
	calls        map[string]dayCount
	seen         map[string]bool
	profile      model.UserProfile
	hash         []byte
	accounts     []string
	transactions []model.Transaction
	categories   []model.CustomCategory
}

type job struct {
	userID string
	model.ImportJob
}

// state is guarded by mu; handlers copy out what they return.
type state struct {
	users   map[string]*user
	byEmail map[string]string
	refresh map[string]string
	jobs    map[string]*job
	mu      sync.Mutex
}

func newState() *state {
	return &state{
		users:   make(map[string]*user),
		byEmail: make(map[string]string),
		refresh: make(map[string]string),
		jobs:    make(map[string]*job),
	}
}

// newID returns a 24 character hexadecimal id.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (u *user) hasAccount(id string) bool {
	return slices.Contains(u.accounts, id)
}

func (u *user) findTransaction(id string) int {
	for i := range u.transactions {
		if u.transactions[i].ID == id {
			return i
		}
	}
	return -1
}

// callsToday returns the imports of account on the UTC day of now.
func (u *user) callsToday(account string, now time.Time) int {
	c, ok := u.calls[account]
	if !ok || c.day != dayKey(now) {
		return 0
	}
	return c.n
}

func (u *user) recordCall(account string, now time.Time) {
	day := dayKey(now)
	c := u.calls[account]
	if c.day != day {
		c = dayCount{day: day}
	}
	c.n++
	u.calls[account] = c
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// untilNextDay is the time left until the allowance resets at UTC midnight.
func untilNextDay(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}
