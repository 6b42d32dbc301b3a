package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/bankflow/internal/importer"
)

func TestImportView_CompletedRun(t *testing.T) {
	out := &syncBuffer{}
	v := NewImportView(out)

	v.Observe(importer.Progress{State: importer.Starting, Phase: "Starting", Message: "Starting import..."})
	v.Observe(importer.Progress{State: importer.Polling, Phase: "processing", Percent: 40, Imported: 3})
	v.Observe(importer.Progress{State: importer.Completed, Percent: 100, Message: "Imported 8, duplicates 2"})

	s := out.String()
	assert.Contains(t, s, "Starting import...")
	assert.Contains(t, s, "Imported 8, duplicates 2")
	assert.Nil(t, v.bar)
}

func TestImportView_FailureAndCooldown(t *testing.T) {
	tests := []struct {
		name     string
		progress importer.Progress
		want     string
	}{
		{
			name:     "failed job",
			progress: importer.Progress{State: importer.Failed, Percent: 40, Message: "bank timeout"},
			want:     "bank timeout",
		},
		{
			name:     "rate limited",
			progress: importer.Progress{State: importer.Idle, Message: "Daily limit reached (2h)"},
			want:     "Daily limit reached (2h)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			v := NewImportView(out)
			v.Observe(importer.Progress{State: importer.Polling, Phase: "processing", Percent: 40})
			v.Observe(tt.progress)

			assert.Contains(t, out.String(), tt.want)
			assert.Nil(t, v.bar)
		})
	}
}

func TestDescribe(t *testing.T) {
	eta := int64(65_000)
	tests := []struct {
		name string
		want string
		p    importer.Progress
	}{
		{name: "phase only", p: importer.Progress{Phase: "processing"}, want: "processing"},
		{name: "no phase", p: importer.Progress{}, want: "Importing"},
		{name: "counters", p: importer.Progress{Phase: "processing", Imported: 4, Duplicates: 1}, want: "processing (4 new, 1 dup)"},
		{name: "eta", p: importer.Progress{Phase: "Account 1/2: processing", EtaMs: &eta}, want: "Account 1/2: processing ~1m 5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.p))
		})
	}
}
