package importer

import (
	"errors"
	"fmt"
)

// Import errors.
var (
	ErrNoAccount = errors.New("no account selected")
	ErrAborted   = errors.New("import aborted")
)

// JobFailedError is a job the server finished with an error.
type JobFailedError struct {
	AccountID string
	JobID     string
	Message   string
	Processed int
	Total     int
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("import of account %s failed: %s", e.AccountID, e.Message)
}

// UserMessage returns the server's error text.
func (e *JobFailedError) UserMessage() string {
	return e.Message
}
