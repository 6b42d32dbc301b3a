// Package importer runs bank imports: it starts server jobs, follows their
// progress, and refreshes the local ledger when they finish.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/cooldown"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/poller"
)

// Backend is the part of the bank data API the orchestrator drives.
type Backend interface {
	api.ProgressReader
	StartImport(ctx context.Context, accountID string, rng model.ImportRange) (*model.ImportStart, error)
	AutoSync(ctx context.Context, minAgeMinutes int) (*model.AutoSyncResult, error)
}

// Guard gates imports on a recorded rate-limit cooldown.
type Guard interface {
	Check(ctx context.Context) error
	Record(ctx context.Context, rl *api.RateLimitError) error
}

// Refresher reloads transactions from the server.
type Refresher interface {
	ForceRefresh(ctx context.Context) error
}

// Summary describes one account's import.
type Summary struct {
	AccountID  string
	JobID      string
	Outcome    poller.Outcome
	Error      string
	Total      int
	Processed  int
	Imported   int
	Duplicates int
	// Abandoned is set when progress could no longer be followed. The
	// server job may still finish.
	Abandoned bool
}

// Options configures an Orchestrator.
type Options struct {
	// Poll paces interactive imports.
	Poll poller.Config
	// Watch paces auto-sync status watching.
	Watch poller.Config
}

// Orchestrator runs one import at a time. Starting a run supersedes any run
// in flight.
type Orchestrator struct {
	backend   Backend
	guard     Guard
	refresher Refresher
	poller    *poller.Poller
	watch     *poller.Poller

	cancel    context.CancelFunc
	observers []Observer
	last      Progress
	gen       uint64
	mu        sync.Mutex
}

// New creates an Orchestrator.
func New(backend Backend, guard Guard, refresher Refresher, opts Options) *Orchestrator {
	if opts.Poll.Interval == 0 {
		opts.Poll = poller.DefaultConfig()
	}
	if opts.Watch.Interval == 0 {
		opts.Watch = poller.Config{Interval: DefaultWatchInterval}
	}
	return &Orchestrator{
		backend:   backend,
		guard:     guard,
		refresher: refresher,
		poller:    poller.New(backend, opts.Poll),
		watch:     poller.New(backend, opts.Watch),
	}
}

// Subscribe registers an observer for every subsequent progress report.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Progress returns the latest report.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// State returns Idle when no run is active, otherwise the run's state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return Idle
	}
	return o.last.State
}

// Abort cancels the run in flight. The server job is left alone.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	if o.cancel == nil {
		o.mu.Unlock()
		return
	}
	o.cancel()
	o.cancel = nil
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	slog.Info("Import aborted")
	o.publish(gen, Progress{State: Idle, Message: "Import cancelled"})
}

// begin supersedes any active run and returns the new run's context.
func (o *Orchestrator) begin(ctx context.Context) (context.Context, uint64, func()) {
	runCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if o.cancel != nil {
		slog.Debug("Superseding active import run")
		o.cancel()
	}
	o.gen++
	gen := o.gen
	o.cancel = cancel
	o.mu.Unlock()

	return runCtx, gen, func() {
		cancel()
		o.mu.Lock()
		if o.gen == gen {
			o.cancel = nil
		}
		o.mu.Unlock()
	}
}

// publish delivers p if gen is still the current run.
func (o *Orchestrator) publish(gen uint64, p Progress) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.last = p
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()

	for _, obs := range observers {
		obs(p)
	}
}

// ImportAccount imports one account. A cooldown refuses the import without
// contacting the server. The ledger is refreshed once when the job completes.
// An abandoned job returns its summary and no error.
func (o *Orchestrator) ImportAccount(ctx context.Context, accountID string, rng model.ImportRange) (*Summary, error) {
	if accountID == "" {
		return nil, ErrNoAccount
	}

	runCtx, gen, end := o.begin(ctx)
	defer end()

	if err := o.guard.Check(ctx); err != nil {
		o.publish(gen, Progress{State: Idle, Message: err.Error()})
		return nil, err
	}

	o.publish(gen, Progress{State: Starting, Phase: "Starting", AccountID: accountID, AccountCount: 1, Message: "Starting import..."})

	sum, err := o.importOne(runCtx, gen, accountID, rng, 0, 1, &progressFloor{})
	if err != nil {
		return nil, o.startFailed(ctx, gen, accountID, err)
	}

	switch sum.Outcome {
	case poller.Completed:
		o.publish(gen, Progress{
			State:        Completed,
			Percent:      100,
			Phase:        "Completed",
			AccountID:    accountID,
			JobID:        sum.JobID,
			AccountCount: 1,
			Imported:     sum.Imported,
			Duplicates:   sum.Duplicates,
			Message:      fmt.Sprintf("Imported %d, duplicates %d", sum.Imported, sum.Duplicates),
		})
		if err := o.refresh(ctx); err != nil {
			return &sum, err
		}
		return &sum, nil
	case poller.Failed:
		return &sum, o.jobFailed(gen, sum)
	case poller.Cancelled:
		return &sum, ErrAborted
	default:
		// Last known progress stays on display.
		last := o.Progress()
		last.State = Idle
		last.Message = "Lost track of import progress"
		o.publish(gen, last)
		return &sum, nil
	}
}

// ImportAccounts imports the accounts one after another with a single
// aggregate progress. The first failed job or failed start stops the run;
// abandoned jobs are skipped. The ledger is refreshed once at the end, or
// when the run stops early, whenever any account completed.
func (o *Orchestrator) ImportAccounts(ctx context.Context, accountIDs []string, rng model.ImportRange) ([]Summary, error) {
	if len(accountIDs) == 0 {
		return nil, ErrNoAccount
	}

	runCtx, gen, end := o.begin(ctx)
	defer end()

	if err := o.guard.Check(ctx); err != nil {
		o.publish(gen, Progress{State: Idle, Message: err.Error()})
		return nil, err
	}

	n := len(accountIDs)
	o.publish(gen, Progress{State: Starting, Phase: "Starting multi-account import", AccountCount: n})

	summaries := make([]Summary, 0, n)
	completed := 0
	floor := &progressFloor{}
	for i, id := range accountIDs {
		if id == "" {
			return summaries, ErrNoAccount
		}

		o.publish(gen, Progress{
			State:        Starting,
			Percent:      floor.raise(model.AggregatePercent(i, n, 0)),
			Phase:        fmt.Sprintf("Account %d/%d: starting", i+1, n),
			AccountID:    id,
			AccountIndex: i,
			AccountCount: n,
		})

		sum, err := o.importOne(runCtx, gen, id, rng, i, n, floor)
		if err != nil {
			err = o.startFailed(ctx, gen, id, err)
			return summaries, o.settle(ctx, completed, err)
		}
		summaries = append(summaries, sum)

		switch sum.Outcome {
		case poller.Completed:
			completed++
			o.publish(gen, Progress{
				State:        Polling,
				Percent:      floor.raise(model.AggregatePercent(i+1, n, 0)),
				Phase:        fmt.Sprintf("Account %d/%d: completed", i+1, n),
				AccountID:    id,
				JobID:        sum.JobID,
				AccountIndex: i,
				AccountCount: n,
				Imported:     sum.Imported,
				Duplicates:   sum.Duplicates,
				Message:      fmt.Sprintf("Account %d imported %d, dup %d", i+1, sum.Imported, sum.Duplicates),
			})
		case poller.Failed:
			return summaries, o.settle(ctx, completed, o.jobFailed(gen, sum))
		case poller.Cancelled:
			return summaries, ErrAborted
		default:
			slog.Warn("Lost track of import progress, moving on",
				"account_id", id, "job_id", sum.JobID, "outcome", sum.Outcome.String())
		}
	}

	if completed == 0 {
		o.publish(gen, Progress{State: Idle, AccountCount: n, Message: "No account finished importing"})
		return summaries, nil
	}

	o.publish(gen, Progress{
		State:        Completed,
		Percent:      100,
		Phase:        "Completed",
		AccountIndex: n - 1,
		AccountCount: n,
		Message:      "All accounts imported",
	})
	return summaries, o.refresh(ctx)
}

// progressFloor keeps aggregate progress from moving backwards across a run.
type progressFloor struct {
	pct float64
}

func (f *progressFloor) raise(pct float64) float64 {
	f.pct = max(f.pct, pct)
	return f.pct
}

// importOne starts and follows one job, reporting aggregate progress that
// never drops below floor.
func (o *Orchestrator) importOne(ctx context.Context, gen uint64, accountID string, rng model.ImportRange, index, count int, floor *progressFloor) (Summary, error) {
	sum := Summary{AccountID: accountID}

	start, err := o.backend.StartImport(ctx, accountID, rng)
	if err != nil {
		return sum, err
	}
	sum.JobID = start.JobID
	sum.Total = start.Total
	slog.Info("Import started", "account_id", accountID, "job_id", start.JobID, "total", start.Total)

	phase := "Processing"
	if count > 1 {
		phase = fmt.Sprintf("Account %d/%d: processing", index+1, count)
	}
	o.publish(gen, Progress{
		State:        Polling,
		Percent:      floor.raise(model.AggregatePercent(index, count, 0)),
		Phase:        phase,
		AccountID:    accountID,
		JobID:        start.JobID,
		AccountIndex: index,
		AccountCount: count,
	})

	res := o.poller.Start(ctx, start.JobID, func(job model.ImportJob) {
		pct := floor.raise(model.AggregatePercent(index, count, job.Percent()))

		phase := job.DisplayPhase()
		if count > 1 {
			phase = fmt.Sprintf("Account %d/%d: %s", index+1, count, job.Phase)
		}
		o.publish(gen, Progress{
			State:        Polling,
			Percent:      pct,
			Phase:        phase,
			EtaMs:        job.EtaMs,
			AccountID:    accountID,
			JobID:        job.JobID,
			AccountIndex: index,
			AccountCount: count,
			Imported:     job.Imported,
			Duplicates:   job.DuplicatesCount,
		})
	}).Wait()

	sum.Outcome = res.Outcome
	if res.Last != nil {
		sum.Total = res.Last.Total
		sum.Processed = res.Last.Processed
		sum.Error = res.Last.ErrorMessage()
		sum.Imported = res.Last.Imported
		sum.Duplicates = res.Last.DuplicatesCount
	}
	if res.Outcome == poller.Abandoned || res.Outcome == poller.TimedOut {
		sum.Abandoned = true
		slog.Debug("Import polling gave up", "job_id", start.JobID, "outcome", res.Outcome.String(), "error", res.Err)
	}
	if res.Outcome == poller.Failed {
		slog.Warn("Import job failed", "account_id", accountID, "job_id", start.JobID, "error", res.Err)
	}
	return sum, nil
}

// startFailed handles an error from starting a job.
func (o *Orchestrator) startFailed(ctx context.Context, gen uint64, accountID string, err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrAborted
	}

	var rl *api.RateLimitError
	if errors.As(err, &rl) {
		if recErr := o.guard.Record(ctx, rl); recErr != nil {
			slog.Warn("Failed to record sync cooldown", "error", recErr)
		}
		limit := &cooldown.LimitError{Cause: rl}
		o.publish(gen, Progress{State: Idle, Message: limit.Error()})
		return limit
	}

	o.publish(gen, Progress{State: Failed, AccountID: accountID, Message: err.Error()})
	return fmt.Errorf("failed to start import of account %s: %w", accountID, err)
}

func (o *Orchestrator) jobFailed(gen uint64, sum Summary) error {
	failure := &JobFailedError{
		AccountID: sum.AccountID,
		JobID:     sum.JobID,
		Message:   sum.Error,
		Processed: sum.Processed,
		Total:     sum.Total,
	}
	last := o.Progress()
	o.publish(gen, Progress{
		State:        Failed,
		Percent:      last.Percent,
		Phase:        last.Phase,
		AccountID:    sum.AccountID,
		JobID:        sum.JobID,
		AccountIndex: last.AccountIndex,
		AccountCount: last.AccountCount,
		Message:      sum.Error,
	})
	return failure
}

// settle refreshes after a run stopped early so completed accounts still
// show up, and returns the error that stopped it.
func (o *Orchestrator) settle(ctx context.Context, completed int, cause error) error {
	if completed > 0 && !errors.Is(cause, ErrAborted) {
		if err := o.refresh(ctx); err != nil {
			slog.Warn("Refresh after partial import failed", "error", err)
		}
	}
	return cause
}

func (o *Orchestrator) refresh(ctx context.Context) error {
	if o.refresher == nil {
		return nil
	}
	if err := o.refresher.ForceRefresh(ctx); err != nil {
		return fmt.Errorf("import finished but refreshing transactions failed: %w", err)
	}
	return nil
}
