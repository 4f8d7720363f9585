// Package api contains the JSON and YAML documents batchplane exchanges with
// the outside world: definition files, status output and execution events.
package api

import (
	"time"

	"batchplane/internal/batch"
)

// JobDefinitionDocument is the file format accepted by `batchctl create`.
type JobDefinitionDocument struct {
	Code       string         `json:"code" yaml:"code"`
	Job        string         `json:"job" yaml:"job"`
	Type       string         `json:"type,omitempty" yaml:"type,omitempty"`
	Label      string         `json:"label,omitempty" yaml:"label,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ToDefinition converts the document to a job definition.
func (d JobDefinitionDocument) ToDefinition() *batch.JobDefinition {
	raw := d.Parameters
	if raw == nil {
		raw = map[string]any{}
	}
	return &batch.JobDefinition{
		Code:          d.Code,
		JobName:       d.Job,
		Type:          d.Type,
		Label:         d.Label,
		RawParameters: raw,
	}
}

// ExecutionEvent is published when an execution finishes.
type ExecutionEvent struct {
	ExecutionID     string     `json:"execution_id"`
	Code            string     `json:"code"`
	Job             string     `json:"job"`
	Type            string     `json:"type,omitempty"`
	Status          string     `json:"status"`
	ExitCode        string     `json:"exit_code"`
	ExitDescription string     `json:"exit_description,omitempty"`
	Warnings        int        `json:"warnings"`
	User            string     `json:"user,omitempty"`
	Failures        []string   `json:"failures,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// NewExecutionEvent builds the event for execution.
func NewExecutionEvent(execution *batch.JobExecution) ExecutionEvent {
	event := ExecutionEvent{
		ExecutionID:     execution.ID.String(),
		Code:            execution.DefinitionCode(),
		Status:          execution.Status.String(),
		ExitCode:        string(execution.ExitStatus.Code),
		ExitDescription: execution.ExitStatus.Description,
		Warnings:        execution.WarningCount(),
		User:            execution.User,
		StartedAt:       execution.StartedAt,
		EndedAt:         execution.EndedAt,
		Timestamp:       time.Now().UTC(),
	}
	if execution.Definition != nil {
		event.Job = execution.Definition.JobName
		event.Type = execution.Definition.Type
	}
	for _, f := range execution.FailureExceptions {
		event.Failures = append(event.Failures, f.Render())
	}
	for _, s := range execution.StepExecutions {
		for _, f := range s.FailureExceptions {
			event.Failures = append(event.Failures, f.Render())
		}
	}
	return event
}

// ExecutionResponse is the `batchctl status -o json` document.
type ExecutionResponse struct {
	ID              string         `json:"id"`
	Code            string         `json:"code"`
	Job             string         `json:"job"`
	Status          string         `json:"status"`
	ExitCode        string         `json:"exit_code"`
	ExitDescription string         `json:"exit_description,omitempty"`
	PID             int            `json:"pid,omitempty"`
	User            string         `json:"user,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Steps           []StepResponse `json:"steps"`
	Failures        []string       `json:"failures,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
}

// StepResponse describes one step execution.
type StepResponse struct {
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	ExitCode  string         `json:"exit_code"`
	Read      int            `json:"read"`
	Write     int            `json:"write"`
	Warnings  []string       `json:"warnings,omitempty"`
	Failures  []string       `json:"failures,omitempty"`
	Summary   map[string]any `json:"summary,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// NewExecutionResponse builds the status document for execution.
func NewExecutionResponse(execution *batch.JobExecution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:              execution.ID.String(),
		Code:            execution.DefinitionCode(),
		Status:          execution.Status.String(),
		ExitCode:        string(execution.ExitStatus.Code),
		ExitDescription: execution.ExitStatus.Description,
		PID:             execution.PID,
		User:            execution.User,
		Parameters:      execution.Parameters.All(),
		Steps:           []StepResponse{},
		CreatedAt:       execution.CreatedAt,
		StartedAt:       execution.StartedAt,
		EndedAt:         execution.EndedAt,
		UpdatedAt:       execution.UpdatedAt,
	}
	if execution.Definition != nil {
		resp.Job = execution.Definition.JobName
	}
	for _, f := range execution.FailureExceptions {
		resp.Failures = append(resp.Failures, f.Render())
	}
	for _, s := range execution.StepExecutions {
		step := StepResponse{
			Name:      s.StepName,
			Status:    s.Status.String(),
			ExitCode:  string(s.ExitStatus.Code),
			Read:      s.ReadCount,
			Write:     s.WriteCount,
			Summary:   s.Summary,
			StartedAt: s.StartedAt,
			EndedAt:   s.EndedAt,
		}
		for _, w := range s.Warnings {
			step.Warnings = append(step.Warnings, w.Text())
		}
		for _, f := range s.FailureExceptions {
			step.Failures = append(step.Failures, f.Render())
		}
		resp.Steps = append(resp.Steps, step)
	}
	return resp
}
