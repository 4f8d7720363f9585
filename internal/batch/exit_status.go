package batch

import "strings"

// ExitCode is the outcome code attached to a finished (or finishing) execution.
// It is independent from BatchStatus: a FAILED status may carry a STOPPED code.
type ExitCode string

const (
	ExitUnknown   ExitCode = "UNKNOWN"
	ExitExecuting ExitCode = "EXECUTING"
	ExitNoop      ExitCode = "NOOP"
	ExitCompleted ExitCode = "COMPLETED"
	ExitWarning   ExitCode = "WARNING"
	ExitStopped   ExitCode = "STOPPED"
	ExitFailed    ExitCode = "FAILED"
)

// severity orders exit codes so that combining statuses keeps the worst one.
var severity = map[ExitCode]int{
	ExitExecuting: 1,
	ExitCompleted: 2,
	ExitNoop:      3,
	ExitWarning:   4,
	ExitStopped:   5,
	ExitFailed:    6,
	ExitUnknown:   7,
}

// ExitStatus is an exit code plus a human readable description.
type ExitStatus struct {
	Code        ExitCode `json:"code"`
	Description string   `json:"description,omitempty"`
}

func NewExitStatus(code ExitCode, description ...string) ExitStatus {
	return ExitStatus{Code: code, Description: strings.Join(description, "; ")}
}

// Severity returns the rank of the exit code; unknown codes rank highest.
func (e ExitStatus) Severity() int {
	if s, ok := severity[e.Code]; ok {
		return s
	}
	return severity[ExitUnknown]
}

// And combines two exit statuses. The more severe code wins and the
// descriptions are concatenated.
func (e ExitStatus) And(other ExitStatus) ExitStatus {
	result := e
	if other.Severity() > e.Severity() {
		result.Code = other.Code
	}
	result.Description = joinDescription(e.Description, other.Description)
	return result
}

func (e ExitStatus) String() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Description
}

func joinDescription(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	}
	return a + "; " + b
}
