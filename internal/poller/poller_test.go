package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/model"
)

var fastConfig = Config{Interval: MinInterval}

func strPtr(s string) *string { return &s }

// scripted returns a mock whose progress responses follow steps, repeating the last one.
func scripted(steps ...func(jobID string) (*model.ImportJob, error)) *api.MockClient {
	var (
		mu sync.Mutex
		i  int
	)
	client := api.NewMockClient()
	client.ImportProgressFn = func(_ context.Context, jobID string) (*model.ImportJob, error) {
		mu.Lock()
		step := steps[min(i, len(steps)-1)]
		i++
		mu.Unlock()
		return step(jobID)
	}
	return client
}

func progress(processed, total int) func(string) (*model.ImportJob, error) {
	return func(jobID string) (*model.ImportJob, error) {
		return &model.ImportJob{JobID: jobID, Processed: processed, Total: total, Phase: model.PhaseProcessing}, nil
	}
}

func done(processed, total int, errMsg *string) func(string) (*model.ImportJob, error) {
	return func(jobID string) (*model.ImportJob, error) {
		phase := model.PhaseCompleted
		if errMsg != nil {
			phase = model.PhaseFailed
		}
		return &model.ImportJob{JobID: jobID, Processed: processed, Total: total, Phase: phase, Done: true, Error: errMsg}, nil
	}
}

type recorder struct {
	updates []model.ImportJob
	mu      sync.Mutex
}

func (r *recorder) record(job model.ImportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, job)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func TestPoller_Completes(t *testing.T) {
	client := scripted(progress(2, 10), progress(6, 10), done(10, 10, nil))
	rec := &recorder{}

	res := New(client, fastConfig).Poll(context.Background(), "job-1", rec.record)

	assert.Equal(t, Completed, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	require.Len(t, rec.updates, 3)

	var last float64
	for _, u := range rec.updates {
		assert.GreaterOrEqual(t, u.Percent(), last)
		last = u.Percent()
	}
	assert.InDelta(t, 100.0, last, 0.001)
	assert.Equal(t, 3, client.Calls("ImportProgress"))
}

func TestPoller_FailedKeepsCounters(t *testing.T) {
	client := scripted(progress(3, 10), done(5, 10, strPtr("bank connection lost")))

	res := New(client, fastConfig).Poll(context.Background(), "job-1", nil)

	assert.Equal(t, Failed, res.Outcome)
	require.Error(t, res.Err)
	assert.Equal(t, "bank connection lost", res.Err.Error())
	require.NotNil(t, res.Last)
	assert.Equal(t, 5, res.Last.Processed)
	assert.InDelta(t, 50.0, res.Last.Percent(), 0.001)
}

func TestPoller_DoneWithEmptyErrorIsCompleted(t *testing.T) {
	client := scripted(done(4, 4, strPtr("")))

	res := New(client, fastConfig).Poll(context.Background(), "job-1", nil)
	assert.Equal(t, Completed, res.Outcome)
}

func TestPoller_AbandonsOnRequestError(t *testing.T) {
	boom := errors.New("connection refused")
	client := scripted(progress(1, 10), func(string) (*model.ImportJob, error) { return nil, boom })
	rec := &recorder{}

	res := New(client, fastConfig).Poll(context.Background(), "job-1", rec.record)

	assert.Equal(t, Abandoned, res.Outcome)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 2, client.Calls("ImportProgress"), "no request after the failure")
}

func TestPoller_CancelStopsUpdates(t *testing.T) {
	client := scripted(progress(1, 100))
	rec := &recorder{}

	var once sync.Once
	first := make(chan struct{})
	h := New(client, fastConfig).Start(context.Background(), "job-1", func(job model.ImportJob) {
		rec.record(job)
		once.Do(func() { close(first) })
	})

	<-first
	h.Cancel()
	res := h.Wait()

	assert.Equal(t, Cancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)

	seen := rec.count()
	time.Sleep(3 * MinInterval)
	assert.Equal(t, seen, rec.count(), "no updates after Done")

	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Wait")
	}
}

func TestPoller_ParentContextCancels(t *testing.T) {
	client := scripted(progress(1, 100))
	ctx, cancel := context.WithCancel(context.Background())

	h := New(client, fastConfig).Start(ctx, "job-1", nil)
	cancel()

	assert.Equal(t, Cancelled, h.Wait().Outcome)
}

func TestPoller_DiscardsOtherJob(t *testing.T) {
	other := func(string) (*model.ImportJob, error) {
		return &model.ImportJob{JobID: "job-old", Processed: 9, Total: 10, Done: true, Phase: model.PhaseCompleted}, nil
	}
	client := scripted(other, progress(1, 10), done(10, 10, nil))
	rec := &recorder{}

	res := New(client, fastConfig).Poll(context.Background(), "job-1", rec.record)

	assert.Equal(t, Completed, res.Outcome)
	require.Len(t, rec.updates, 2)
	for _, u := range rec.updates {
		assert.Equal(t, "job-1", u.JobID)
	}
}

func TestPoller_MaxAttempts(t *testing.T) {
	client := scripted(progress(1, 10))
	var calls atomic.Int32

	res := New(client, Config{Interval: MinInterval, MaxAttempts: 3}).Poll(context.Background(), "job-1",
		func(model.ImportJob) { calls.Add(1) })

	assert.Equal(t, TimedOut, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoller_Deadline(t *testing.T) {
	client := scripted(progress(1, 10))

	start := time.Now()
	res := New(client, Config{Interval: MinInterval, Deadline: 350 * time.Millisecond}).Poll(context.Background(), "job-1", nil)

	assert.Equal(t, TimedOut, res.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.GreaterOrEqual(t, res.Attempts, 1)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "lower bound", cfg: Config{Interval: MinInterval}},
		{name: "upper bound", cfg: Config{Interval: MaxInterval}},
		{name: "too fast", cfg: Config{Interval: 50 * time.Millisecond}, wantErr: true},
		{name: "too slow", cfg: Config{Interval: 11 * time.Second}, wantErr: true},
		{name: "negative attempts", cfg: Config{Interval: DefaultInterval, MaxAttempts: -1}, wantErr: true},
		{name: "negative deadline", cfg: Config{Interval: DefaultInterval, Deadline: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	p := New(api.NewMockClient(), Config{Interval: time.Millisecond, MaxAttempts: -4})
	assert.Equal(t, DefaultInterval, p.Config().Interval)
	assert.Zero(t, p.Config().MaxAttempts)
}
