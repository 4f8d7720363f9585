// Package batch contains the domain model of a batch job run: definitions,
// executions, step executions and the statuses they move through.
package batch

// BatchStatus represents the lifecycle state of a job or step execution.
type BatchStatus string

const (
	StatusStarting  BatchStatus = "STARTING"
	StatusRunning   BatchStatus = "RUNNING"
	StatusStopping  BatchStatus = "STOPPING"
	StatusStopped   BatchStatus = "STOPPED"
	StatusCompleted BatchStatus = "COMPLETED"
	StatusFailed    BatchStatus = "FAILED"
	StatusAbandoned BatchStatus = "ABANDONED"
	StatusUnknown   BatchStatus = "UNKNOWN"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsStarting() bool { return s == StatusStarting }

func (s BatchStatus) IsStopping() bool { return s == StatusStopping }

// IsTerminal reports whether no further transition is expected.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped, StatusAbandoned:
		return true
	}
	return false
}

// Resumable reports whether an existing execution in this state may be
// picked up by a new process invocation.
func (s BatchStatus) Resumable() bool {
	return s == StatusStarting || s == StatusStopping
}

// Valid reports whether s is one of the known statuses.
func (s BatchStatus) Valid() bool {
	switch s {
	case StatusStarting, StatusRunning, StatusStopping, StatusStopped,
		StatusCompleted, StatusFailed, StatusAbandoned, StatusUnknown:
		return true
	}
	return false
}
