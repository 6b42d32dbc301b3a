package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		total     int
		want      float64
	}{
		{name: "half done", processed: 50, total: 100, want: 50},
		{name: "complete", processed: 100, total: 100, want: 100},
		{name: "server overshoot clamps to 100", processed: 150, total: 100, want: 100},
		{name: "unknown total", processed: 10, total: 0, want: 0},
		{name: "zero of zero", processed: 0, total: 0, want: 0},
		{name: "negative total", processed: 5, total: -1, want: 0},
		{name: "negative processed clamps to 0", processed: -5, total: 10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percent(tt.processed, tt.total)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
			assert.False(t, math.IsInf(got, 0))
		})
	}
}

func TestAggregatePercent(t *testing.T) {
	tests := []struct {
		name  string
		index int
		count int
		local float64
		want  float64
	}{
		{name: "first account start", index: 0, count: 3, local: 0, want: 0},
		{name: "first account half", index: 0, count: 3, local: 50, want: 50.0 / 3},
		{name: "second account half", index: 1, count: 3, local: 50, want: 100.0/3 + 50.0/3},
		{name: "last account done", index: 2, count: 3, local: 100, want: 100},
		{name: "local overshoot is clamped", index: 1, count: 2, local: 180, want: 100},
		{name: "no accounts", index: 0, count: 0, local: 50, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AggregatePercent(tt.index, tt.count, tt.local), 1e-9)
		})
	}
}

func TestAggregatePercent_MonotonicWithinJob(t *testing.T) {
	accounts := 3
	for index := 0; index < accounts; index++ {
		prev := -1.0
		for processed := 0; processed <= 40; processed += 5 {
			got := AggregatePercent(index, accounts, Percent(processed, 40))
			assert.GreaterOrEqual(t, got, prev)
			prev = got
		}
	}
}

func TestAggregatePercent_AccountBoundaries(t *testing.T) {
	for _, count := range []int{3, 6, 7, 9} {
		for index := 0; index < count-1; index++ {
			end := AggregatePercent(index, count, 100)
			next := AggregatePercent(index+1, count, 0)
			assert.Equal(t, end, next, "account %d of %d", index, count)
		}
	}
}

func TestImportJob_Failed(t *testing.T) {
	msg := "bank unavailable"
	empty := ""

	assert.True(t, ImportJob{Done: true, Error: &msg}.Failed())
	assert.False(t, ImportJob{Done: false, Error: &msg}.Failed())
	assert.False(t, ImportJob{Done: true, Error: &empty}.Failed())
	assert.False(t, ImportJob{Done: true}.Failed())
}

func TestImportJob_DisplayPhase(t *testing.T) {
	assert.Equal(t, "Completed", ImportJob{Phase: PhaseCompleted}.DisplayPhase())
	assert.Equal(t, "processing", ImportJob{Phase: PhaseProcessing}.DisplayPhase())
}

func TestFormatETA(t *testing.T) {
	ms := func(v int64) *int64 { return &v }

	tests := []struct {
		in   *int64
		name string
		want string
	}{
		{name: "unknown", in: nil, want: ""},
		{name: "zero", in: ms(0), want: "0s"},
		{name: "rounds", in: ms(1499), want: "1s"},
		{name: "under a minute", in: ms(59_400), want: "59s"},
		{name: "one minute", in: ms(60_000), want: "1m 0s"},
		{name: "minutes and seconds", in: ms(185_000), want: "3m 5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatETA(tt.in))
		})
	}
}

func TestSyncQuota_Remaining(t *testing.T) {
	assert.Equal(t, -1, SyncQuota{}.Remaining())
	q := SyncQuota{SoftLimit: 4, Accounts: []AccountQuota{{AccountID: "a", Remaining: 1}, {AccountID: "b", Remaining: 3}}}
	assert.Equal(t, 3, q.Remaining())
}
