package tui

import "github.com/Veraticus/bankflow/internal/importer"

// statusMsg carries the latest status of every watched job.
type statusMsg []importer.JobStatus

// watchDoneMsg is sent once watching has ended.
type watchDoneMsg struct {
	err      error
	statuses []importer.JobStatus
}
