// Package poller follows a server-side import job until it finishes.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/model"
)

// Interval bounds and defaults.
const (
	DefaultInterval = 700 * time.Millisecond
	MinInterval     = 100 * time.Millisecond
	MaxInterval     = 10 * time.Second
)

// ErrInvalidInterval is returned by Config.Validate.
var ErrInvalidInterval = errors.New("poll interval out of range")

// Outcome is how a poll run ended.
type Outcome int

// Poll outcomes.
const (
	// Completed means the job finished without error.
	Completed Outcome = iota + 1
	// Failed means the job finished with an error. The last counters are kept.
	Failed
	// Abandoned means a progress request failed; the job may still be running.
	Abandoned
	// Cancelled means the caller stopped polling.
	Cancelled
	// TimedOut means the attempt or time budget ran out first.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config controls polling cadence and budget.
type Config struct {
	// Interval between progress requests. The first request waits one interval.
	Interval time.Duration
	// MaxAttempts stops polling after this many requests. Zero is unbounded.
	MaxAttempts int
	// Deadline stops polling after this long. Zero is unbounded.
	Deadline time.Duration
}

// DefaultConfig returns the interactive import cadence.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval < MinInterval || c.Interval > MaxInterval {
		return fmt.Errorf("%w: %s (want %s..%s)", ErrInvalidInterval, c.Interval, MinInterval, MaxInterval)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative: %d", c.MaxAttempts)
	}
	if c.Deadline < 0 {
		return fmt.Errorf("deadline must not be negative: %s", c.Deadline)
	}
	return nil
}

// Result is the final state of a poll run.
type Result struct {
	Err      error
	Last     *model.ImportJob
	Outcome  Outcome
	Attempts int
}

// Poller issues progress requests for jobs.
type Poller struct {
	client api.ProgressReader
	cfg    Config
}

// New creates a Poller. An invalid configuration falls back to the defaults
// for the invalid fields.
func New(client api.ProgressReader, cfg Config) *Poller {
	if cfg.Interval < MinInterval || cfg.Interval > MaxInterval {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.Deadline < 0 {
		cfg.Deadline = 0
	}
	return &Poller{client: client, cfg: cfg}
}

// Config returns the effective configuration.
func (p *Poller) Config() Config {
	return p.cfg
}

// Handle controls one poll run.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	jobID  string
	result Result
}

// JobID returns the tracked job.
func (h *Handle) JobID() string {
	return h.jobID
}

// Cancel stops polling. It does not wait; use Wait or Done for that.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once polling has stopped and no further updates will be delivered.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until polling stops and returns the result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

// Start polls jobID in the background, calling onUpdate with every accepted
// response. onUpdate runs on the polling goroutine and is never called after
// Done is closed.
func (p *Poller) Start(ctx context.Context, jobID string, onUpdate func(model.ImportJob)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
		jobID:  jobID,
	}

	go func() {
		defer close(h.done)
		defer cancel()
		h.result = p.run(ctx, jobID, onUpdate)
		slog.Debug("Import polling stopped",
			"job_id", jobID,
			"outcome", h.result.Outcome.String(),
			"attempts", h.result.Attempts)
	}()

	return h
}

// Poll runs to completion on the calling goroutine.
func (p *Poller) Poll(ctx context.Context, jobID string, onUpdate func(model.ImportJob)) Result {
	return p.Start(ctx, jobID, onUpdate).Wait()
}

func (p *Poller) run(ctx context.Context, jobID string, onUpdate func(model.ImportJob)) Result {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.cfg.Deadline > 0 {
		timer := time.NewTimer(p.cfg.Deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	var res Result
	for {
		select {
		case <-ctx.Done():
			res.Outcome = Cancelled
			res.Err = ctx.Err()
			return res
		case <-deadline:
			res.Outcome = TimedOut
			return res
		case <-ticker.C:
		}

		res.Attempts++
		job, err := p.client.ImportProgress(ctx, jobID)
		if ctx.Err() != nil {
			res.Outcome = Cancelled
			res.Err = ctx.Err()
			return res
		}
		if err != nil {
			slog.Debug("Import progress request failed", "job_id", jobID, "error", err)
			res.Outcome = Abandoned
			res.Err = err
			return res
		}

		switch {
		case job == nil:
		case job.JobID != "" && job.JobID != jobID:
			slog.Debug("Discarding progress for another job", "job_id", jobID, "got", job.JobID)
		default:
			snapshot := *job
			res.Last = &snapshot
			if onUpdate != nil {
				onUpdate(snapshot)
			}
			if job.Done {
				if job.Failed() {
					res.Outcome = Failed
					res.Err = errors.New(job.ErrorMessage())
				} else {
					res.Outcome = Completed
				}
				return res
			}
		}

		if p.cfg.MaxAttempts > 0 && res.Attempts >= p.cfg.MaxAttempts {
			res.Outcome = TimedOut
			return res
		}
	}
}
