package importer

import "fmt"

// State is the orchestrator's position in an import run.
type State int

// Orchestrator states. Completed and Failed are reported at the end of a run,
// after which the orchestrator is Idle again.
const (
	Idle State = iota
	Starting
	Polling
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Polling:
		return "polling"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Progress is what observers see of a run.
type Progress struct {
	EtaMs        *int64
	Phase        string
	AccountID    string
	JobID        string
	Message      string
	Percent      float64
	State        State
	AccountIndex int
	AccountCount int
	Imported     int
	Duplicates   int
}

// Observer receives progress. It is called synchronously and must not block.
type Observer func(Progress)
