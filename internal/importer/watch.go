package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/cooldown"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/poller"
)

// DefaultWatchInterval paces auto-sync status polling.
const DefaultWatchInterval = 1200 * time.Millisecond

// JobStatus is the latest known state of one auto-synced job.
type JobStatus struct {
	Err       error
	Job       *model.ImportJob
	AccountID string
	JobID     string
	// Outcome is zero while the job is still being watched.
	Outcome poller.Outcome
}

// Finished reports whether watching this job has stopped.
func (s JobStatus) Finished() bool {
	return s.Outcome != 0
}

// Percent returns the job's completion percentage.
func (s JobStatus) Percent() float64 {
	if s.Outcome == poller.Completed {
		return 100
	}
	if s.Job == nil {
		return 0
	}
	return s.Job.Percent()
}

// AutoSync asks the server to import every stale account. It respects a
// recorded cooldown and records a new one when the server refuses.
func (o *Orchestrator) AutoSync(ctx context.Context, minAgeMinutes int) (*model.AutoSyncResult, error) {
	if err := o.guard.Check(ctx); err != nil {
		return nil, err
	}

	res, err := o.backend.AutoSync(ctx, minAgeMinutes)
	if err != nil {
		var rl *api.RateLimitError
		if errors.As(err, &rl) {
			if recErr := o.guard.Record(ctx, rl); recErr != nil {
				slog.Warn("Failed to record sync cooldown", "error", recErr)
			}
			return nil, &cooldown.LimitError{Cause: rl}
		}
		return nil, fmt.Errorf("auto sync failed: %w", err)
	}

	slog.Info("Auto sync requested", "started", len(res.Started))
	return res, nil
}

// Watch follows every started job concurrently until all have finished,
// calling onUpdate with the full status list after each change. A job whose
// progress can no longer be read is marked finished with its error. The
// ledger is refreshed once if any job completed.
func (o *Orchestrator) Watch(ctx context.Context, jobs []model.StartedJob, onUpdate func([]JobStatus)) ([]JobStatus, error) {
	statuses := make([]JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = JobStatus{AccountID: j.AccountID, JobID: j.JobID}
	}
	if len(jobs) == 0 {
		return statuses, nil
	}

	var mu sync.Mutex
	notify := func(i int, fn func(*JobStatus)) {
		mu.Lock()
		defer mu.Unlock()
		fn(&statuses[i])
		if onUpdate != nil {
			onUpdate(append([]JobStatus(nil), statuses...))
		}
	}

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.watch.Poll(ctx, j.JobID, func(job model.ImportJob) {
				notify(i, func(s *JobStatus) { s.Job = &job })
			})
			notify(i, func(s *JobStatus) {
				s.Outcome = res.Outcome
				s.Err = res.Err
				if res.Last != nil {
					s.Job = res.Last
				}
			})
		}()
	}
	wg.Wait()

	completed := 0
	for _, s := range statuses {
		if s.Outcome == poller.Completed {
			completed++
		}
	}
	slog.Info("Auto sync finished", "jobs", len(jobs), "completed", completed)

	if ctx.Err() != nil {
		return statuses, ctx.Err()
	}
	if completed == 0 {
		return statuses, nil
	}
	return statuses, o.refresh(ctx)
}
