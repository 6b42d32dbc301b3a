package sandbox

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/bankflow/internal/model"
)

const dateLayout = "2006-01-02"

type window struct {
	start time.Time
	end   time.Time
	from  string
	to    string
}

// importWindow resolves the dates of an import. Incremental imports start at
// the account's last sync. Callers hold the state lock.
func (s *Server) importWindow(u *user, account, from, to string, incremental bool, now time.Time) (window, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return window{}, fmt.Errorf("date_to must be YYYY-MM-DD")
		}
		end = t
	}

	start := end.AddDate(0, 0, -s.cfg.HistoryDays)
	switch {
	case from != "":
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return window{}, fmt.Errorf("date_from must be YYYY-MM-DD")
		}
		start = t
	case incremental:
		if last, ok := u.lastSync[account]; ok {
			start = last.UTC().Truncate(24 * time.Hour)
		}
	}
	if start.After(end) {
		return window{}, fmt.Errorf("date_from is after date_to")
	}

	return window{start: start, end: end, from: start.Format(dateLayout), to: end.Format(dateLayout)}, nil
}

// launch records the call, creates the job and starts processing it.
// Callers hold the state lock.
func (s *Server) launch(u *user, account string, rng window, now time.Time) (*job, []model.Transaction) {
	u.recordCall(account, now)
	rows := bankHistory(account, rng.start, rng.end)

	j := &job{
		userID: u.profile.ID,
		ImportJob: model.ImportJob{
			JobID:     newID(),
			AccountID: account,
			Phase:     model.PhaseStarting,
			Total:     len(rows),
			StartedAt: now.UnixMilli(),
			UpdatedAt: now.UnixMilli(),
		},
	}
	s.state.jobs[j.JobID] = j

	slog.Info("Sandbox import started",
		"account", account,
		"job_id", j.JobID,
		"from", rng.from,
		"to", rng.to,
		"rows", len(rows))

	s.jobs.Add(1)
	go s.run(j, u, rows)
	return j, rows
}

// run processes rows in batches, skipping rows the user already has.
func (s *Server) run(j *job, u *user, rows []model.Transaction) {
	defer s.jobs.Done()

	done := 0
	for {
		select {
		case <-s.ctx.Done():
			s.finish(j, u, "Import interrupted")
			return
		case <-time.After(s.cfg.StepDelay):
		}

		if s.fail[j.AccountID] {
			s.finish(j, u, "Bank connection expired. Please relink the account.")
			return
		}

		next := min(done+s.cfg.BatchSize, len(rows))
		s.state.mu.Lock()
		for _, row := range rows[done:next] {
			key := contentKey(row)
			if u.seen[key] {
				j.DuplicatesCount++
				continue
			}
			u.seen[key] = true
			row.ID = newID()
			row.UserID = u.profile.ID
			row.CreatedAt = s.cfg.Clock.Now().UTC().Format(time.RFC3339)
			u.transactions = append(u.transactions, row)
			j.Imported++
		}
		done = next
		j.Processed = done
		j.Phase = model.PhaseProcessing
		j.UpdatedAt = s.cfg.Clock.Now().UnixMilli()
		eta := s.cfg.StepDelay.Milliseconds() * int64((len(rows)-done+s.cfg.BatchSize-1)/s.cfg.BatchSize)
		j.EtaMs = &eta
		s.state.mu.Unlock()

		if done >= len(rows) {
			break
		}
	}

	s.finish(j, u, "")
}

func (s *Server) finish(j *job, u *user, failure string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	j.Done = true
	j.EtaMs = nil
	j.UpdatedAt = s.cfg.Clock.Now().UnixMilli()
	if failure != "" {
		j.Phase = model.PhaseFailed
		j.Error = &failure
		slog.Warn("Sandbox import failed", "job_id", j.JobID, "error", failure)
		return
	}
	j.Phase = model.PhaseCompleted
	u.lastSync[j.AccountID] = s.cfg.Clock.Now()
	slog.Info("Sandbox import completed",
		"job_id", j.JobID,
		"imported", j.Imported,
		"duplicates", j.DuplicatesCount)
}

// contentKey identifies a bank row independently of the id it was given.
func contentKey(t model.Transaction) string {
	return strings.Join([]string{t.BankAccountID, t.Date, t.Time, t.Type, t.Amount.StringFixed(2), t.Title}, "|")
}

type merchant struct {
	title    string
	category string
	min, max int64
}

var merchants = []merchant{
	{"Corner Bakery", "Food", 250, 1200},
	{"FreshMart Groceries", "Groceries", 1500, 9500},
	{"City Transit", "Transport", 150, 450},
	{"Streamly", "Subscriptions", 999, 999},
	{"Fuel Stop", "Transport", 3000, 7500},
	{"Bookworm", "Shopping", 800, 3500},
	{"Pharmacy Plus", "Health", 400, 2500},
}

// bankHistory returns the deterministic statement of account between start
// and end, one salary on the first of each month and up to two card
// payments per day.
func bankHistory(account string, start, end time.Time) []model.Transaction {
	var rows []model.Transaction
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		if day.Day() == 1 {
			rows = append(rows, bankRow(account, date, "09:00", "income", "Employer Payroll", "Salary", 250000))
		}
		h := seed(account, date)
		for i := range int(h % 3) {
			m := merchants[(h>>(8*(i+1)))%uint64(len(merchants))]
			cents := m.min
			if m.max > m.min {
				cents += int64((h >> (4 * i)) % uint64(m.max-m.min))
			}
			clock := fmt.Sprintf("%02d:%02d", 8+(h>>(3*i))%12, (h>>(5*i))%60)
			rows = append(rows, bankRow(account, date, clock, "expense", m.title, m.category, cents))
		}
	}
	return rows
}

func bankRow(account, date, clock, kind, title, category string, cents int64) model.Transaction {
	amount := decimal.New(cents, -2)
	return model.Transaction{
		Amount:           amount,
		OriginalAmount:   amount,
		Category:         &category,
		Type:             kind,
		Title:            title,
		Description:      strings.ToUpper(title),
		BankAccountID:    account,
		OriginalCurrency: "EUR",
		Date:             date,
		Time:             clock,
		Source:           model.SourceBank,
		CategorySource:   model.CategorySourceAuto,
	}
}

func seed(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
