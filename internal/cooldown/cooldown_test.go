package cooldown

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/service"
	"github.com/Veraticus/bankflow/internal/testutil"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		want string
		in   time.Duration
	}{
		{in: 0, want: "0m"},
		{in: -time.Minute, want: "0m"},
		{in: time.Second, want: "1m"},
		{in: 59 * time.Minute, want: "59m"},
		{in: 59*time.Minute + time.Second, want: "1h 0m"},
		{in: time.Hour, want: "1h 0m"},
		{in: 2*time.Hour + 5*time.Minute, want: "2h 5m"},
		{in: 3*time.Hour + 59*time.Minute, want: "3h 59m"},
		{in: 4 * time.Hour, want: "4h"},
		{in: 7*time.Hour + 30*time.Minute, want: "7h"},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRemaining(tt.in))
		})
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		retry *time.Duration
		name  string
		want  string
	}{
		{name: "two hours", retry: durationPtr(7200 * time.Second), want: "Daily limit reached (2h)"},
		{name: "rounds up", retry: durationPtr(3601 * time.Second), want: "Daily limit reached (2h)"},
		{name: "under an hour", retry: durationPtr(10 * time.Minute), want: "Daily limit reached (1h)"},
		{name: "unknown", want: "Daily limit reached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := &api.RateLimitError{Message: "Daily limit reached", RetryAfter: tt.retry}
			assert.Equal(t, tt.want, Message(rl))
			assert.Equal(t, tt.want, (&LimitError{Cause: rl}).Error())
		})
	}
}

func TestGuard_RecordAndCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewFakeClock(epoch)
	guard := NewGuard(db.Storage, clock)
	ctx := context.Background()

	require.NoError(t, guard.Check(ctx), "no cooldown recorded")

	rl := &api.RateLimitError{Message: "Daily limit reached", RetryAfter: durationPtr(7200 * time.Second)}
	require.NoError(t, guard.Record(ctx, rl))

	until, ok, err := db.Storage.GetMarker(ctx, service.MarkerCooldownUntil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, until.Equal(epoch.Add(2*time.Hour)))

	clock.Advance(90 * time.Minute)
	err = guard.Check(ctx)
	var active *ActiveError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, 30*time.Minute, active.Remaining)
	assert.Equal(t, DailyLimitMessage+". Try again in 30m.", active.Error())
	assert.True(t, IsDailyLimit(err))

	clock.Advance(30 * time.Minute)
	require.NoError(t, guard.Check(ctx), "cooldown elapses at the boundary")

	_, ok, err = db.Storage.GetMarker(ctx, service.MarkerCooldownUntil)
	require.NoError(t, err)
	assert.False(t, ok, "elapsed cooldown is forgotten")
}

func TestGuard_RecordWithoutRetryStoresNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	guard := NewGuard(db.Storage, testutil.NewFakeClock(epoch))
	ctx := context.Background()

	require.NoError(t, guard.Record(ctx, &api.RateLimitError{Message: "Daily limit reached"}))
	require.NoError(t, guard.Record(ctx, nil))

	_, ok, err := db.Storage.GetMarker(ctx, service.MarkerCooldownUntil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, guard.Check(ctx))
}

func TestGuard_CooldownSurvivesRestart(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewFakeClock(epoch)
	ctx := context.Background()

	first := NewGuard(db.Storage, clock)
	require.NoError(t, first.Record(ctx, &api.RateLimitError{Message: "x", RetryAfter: durationPtr(time.Hour)}))

	second := NewGuard(db.Storage, clock)
	var active *ActiveError
	assert.ErrorAs(t, second.Check(ctx), &active)

	require.NoError(t, second.Clear(ctx))
	assert.NoError(t, second.Check(ctx))
}

func TestIsDailyLimit(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "active", err: &ActiveError{Remaining: time.Minute}, want: true},
		{name: "limit", err: &LimitError{Cause: &api.RateLimitError{Message: "x"}}, want: true},
		{name: "wrapped rate limit", err: fmt.Errorf("start: %w", &api.RateLimitError{Message: "x"}), want: true},
		{name: "message prefix", err: errors.New(DailyLimitMessage + ". Try again in 1h 0m."), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDailyLimit(tt.err))
		})
	}
}
