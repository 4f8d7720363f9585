package batch

import (
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// JobDefinition is a configured, named instance of a registered job.
// It is read-only while an execution runs.
type JobDefinition struct {
	ID            uuid.UUID
	Code          string
	JobName       string // Registry key of the runnable job
	Type          string // e.g. "import", "export"
	Label         string
	RawParameters map[string]any
	CreatedAt     time.Time
}

// TypeName returns the definition type, "job" when unset.
func (d *JobDefinition) TypeName() string {
	if d == nil || d.Type == "" {
		return "job"
	}
	return d.Type
}

// DisplayType returns TypeName with its first letter upper-cased.
func (d *JobDefinition) DisplayType() string {
	name := d.TypeName()
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// JobExecution is one run (attempt) of a job definition.
//
// A JobExecution has a single writer at any time: the runner before and after
// the job body, the job body in between. It carries no locks.
type JobExecution struct {
	ID                uuid.UUID
	Definition        *JobDefinition
	Status            BatchStatus
	ExitStatus        ExitStatus
	PID               int
	User              string
	ExecutionContext  *ExecutionContext
	Parameters        *JobParameters
	StepExecutions    []*StepExecution
	FailureExceptions []FailureException
	CreatedAt         time.Time
	StartedAt         *time.Time
	EndedAt           *time.Time
	UpdatedAt         *time.Time
}

// NewJobExecution creates a fresh execution in STARTING state with an empty
// execution context.
func NewJobExecution(definition *JobDefinition, params *JobParameters) *JobExecution {
	return &JobExecution{
		ID:               uuid.New(),
		Definition:       definition,
		Status:           StatusStarting,
		ExitStatus:       NewExitStatus(ExitUnknown),
		ExecutionContext: NewExecutionContext(),
		Parameters:       params,
		CreatedAt:        time.Now().UTC(),
	}
}

// DefinitionCode returns the code of the owning definition, or "" if unset.
func (e *JobExecution) DefinitionCode() string {
	if e.Definition == nil {
		return ""
	}
	return e.Definition.Code
}

// AddStepExecution creates a step execution for stepName and appends it.
func (e *JobExecution) AddStepExecution(stepName string) *StepExecution {
	step := &StepExecution{
		ID:             uuid.New(),
		JobExecutionID: e.ID,
		StepName:       stepName,
		Status:         StatusStarting,
		ExitStatus:     NewExitStatus(ExitExecuting),
	}
	e.StepExecutions = append(e.StepExecutions, step)
	return step
}

func (e *JobExecution) AddFailureException(f FailureException) {
	e.FailureExceptions = append(e.FailureExceptions, f)
}

// WarningCount sums the warnings of every step execution.
func (e *JobExecution) WarningCount() int {
	n := 0
	for _, s := range e.StepExecutions {
		n += len(s.Warnings)
	}
	return n
}

// IsSuccessful applies the terminal classification rule: the run succeeded
// if it exited COMPLETED, or if it exited STOPPED and its status is STOPPED
// (a stop that was requested and honoured).
func (e *JobExecution) IsSuccessful() bool {
	switch e.ExitStatus.Code {
	case ExitCompleted:
		return true
	case ExitStopped:
		return e.Status == StatusStopped
	}
	return false
}

// Clone returns a deep copy of the execution. The definition pointer is
// shared since definitions are read-only.
func (e *JobExecution) Clone() *JobExecution {
	if e == nil {
		return nil
	}
	c := &JobExecution{
		ID:                e.ID,
		Definition:        e.Definition,
		Status:            e.Status,
		ExitStatus:        e.ExitStatus,
		PID:               e.PID,
		User:              e.User,
		ExecutionContext:  e.ExecutionContext.Clone(),
		FailureExceptions: append([]FailureException(nil), e.FailureExceptions...),
		CreatedAt:         e.CreatedAt,
		StartedAt:         cloneTime(e.StartedAt),
		EndedAt:           cloneTime(e.EndedAt),
		UpdatedAt:         cloneTime(e.UpdatedAt),
	}
	if e.Parameters != nil {
		c.Parameters = NewJobParameters(e.Parameters.All())
	}
	for _, s := range e.StepExecutions {
		c.StepExecutions = append(c.StepExecutions, s.Clone())
	}
	return c
}

// StepExecution is one unit of work within a job execution.
type StepExecution struct {
	ID                uuid.UUID
	JobExecutionID    uuid.UUID
	StepName          string
	Status            BatchStatus
	ExitStatus        ExitStatus
	Warnings          []Warning
	FailureExceptions []FailureException
	ReadCount         int
	WriteCount        int
	Summary           map[string]any
	StartedAt         *time.Time
	EndedAt           *time.Time
}

func (s *StepExecution) AddWarning(w Warning) {
	s.Warnings = append(s.Warnings, w)
}

func (s *StepExecution) AddFailureException(f FailureException) {
	s.FailureExceptions = append(s.FailureExceptions, f)
}

func (s *StepExecution) IncrementRead()  { s.ReadCount++ }
func (s *StepExecution) IncrementWrite() { s.WriteCount++ }

// AddSummaryInfo records a free-form counter or note shown in reports.
func (s *StepExecution) AddSummaryInfo(key string, value any) {
	if s.Summary == nil {
		s.Summary = make(map[string]any)
	}
	s.Summary[key] = value
}

func (s *StepExecution) Clone() *StepExecution {
	if s == nil {
		return nil
	}
	c := *s
	c.Warnings = append([]Warning(nil), s.Warnings...)
	c.FailureExceptions = append([]FailureException(nil), s.FailureExceptions...)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	if s.Summary != nil {
		c.Summary = make(map[string]any, len(s.Summary))
		for k, v := range s.Summary {
			c.Summary[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
