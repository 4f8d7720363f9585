package api

import (
	"testing"

	"batchplane/internal/batch"

	"gopkg.in/yaml.v3"
)

func TestJobDefinitionDocument_YAML(t *testing.T) {
	input := `
code: nightly_export
job: command
type: export
parameters:
  runtime: exec
  steps:
    - name: dump
      command: echo done
`
	var doc JobDefinitionDocument
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		t.Fatalf("failed to parse document: %v", err)
	}

	def := doc.ToDefinition()
	if def.Code != "nightly_export" || def.JobName != "command" || def.Type != "export" {
		t.Errorf("unexpected definition %+v", def)
	}
	steps, err := batch.NewJobParameters(def.RawParameters).MapSlice("steps")
	if err != nil || len(steps) != 1 || steps[0]["name"] != "dump" {
		t.Errorf("unexpected steps %v (%v)", steps, err)
	}
}

func TestNewExecutionEvent(t *testing.T) {
	def := &batch.JobDefinition{Code: "nightly_export", JobName: "command", Type: "export"}
	e := batch.NewJobExecution(def, nil)
	e.Status = batch.StatusFailed
	e.ExitStatus = batch.NewExitStatus(batch.ExitFailed)
	step := e.AddStepExecution("dump")
	step.AddWarning(batch.Warning{Reason: "skipped"})
	step.AddFailureException(batch.FailureException{Code: 3, Class: "*job.ExitCodeError", Message: "boom"})

	event := NewExecutionEvent(e)

	if event.Code != "nightly_export" || event.Job != "command" || event.Status != "FAILED" {
		t.Errorf("unexpected event %+v", event)
	}
	if event.Warnings != 1 {
		t.Errorf("got %d warnings, want 1", event.Warnings)
	}
	if len(event.Failures) != 1 || event.Failures[0] != "Error #3 in class *job.ExitCodeError: boom" {
		t.Errorf("unexpected failures %v", event.Failures)
	}
}

func TestNewExecutionResponse(t *testing.T) {
	e := batch.NewJobExecution(&batch.JobDefinition{Code: "c", JobName: "command"}, batch.NewJobParameters(map[string]any{"a": 1}))
	e.PID = 12
	e.AddStepExecution("one").IncrementRead()

	resp := NewExecutionResponse(e)
	if resp.PID != 12 || resp.Parameters["a"] != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Steps) != 1 || resp.Steps[0].Read != 1 || resp.Steps[0].Name != "one" {
		t.Errorf("unexpected steps %+v", resp.Steps)
	}
}
