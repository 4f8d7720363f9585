package runner

import (
	"testing"

	"batchplane/internal/batch"
)

func TestAggregate_Classification(t *testing.T) {
	def := &batch.JobDefinition{Code: "daily_export", Type: "export"}

	tests := []struct {
		name     string
		status   batch.BatchStatus
		exitCode batch.ExitCode
		warnings int
		want     Classification
		exit     int
	}{
		{"completed", batch.StatusCompleted, batch.ExitCompleted, 0, Success, 0},
		{"completed with warnings", batch.StatusCompleted, batch.ExitCompleted, 2, SuccessWithWarnings, 2},
		{"stop honoured", batch.StatusStopped, batch.ExitStopped, 0, Success, 0},
		{"stop honoured with warnings", batch.StatusStopped, batch.ExitStopped, 1, SuccessWithWarnings, 2},
		{"stopped exit on failed status", batch.StatusFailed, batch.ExitStopped, 0, Error, 1},
		{"failed", batch.StatusFailed, batch.ExitFailed, 0, Error, 1},
		{"warning exit code", batch.StatusCompleted, batch.ExitWarning, 0, Error, 1},
		{"unknown", batch.StatusRunning, batch.ExitUnknown, 0, Error, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := batch.NewJobExecution(def, nil)
			e.Status = tt.status
			e.ExitStatus = batch.NewExitStatus(tt.exitCode)
			step := e.AddStepExecution("export")
			for i := 0; i < tt.warnings; i++ {
				step.AddWarning(batch.Warning{Reason: "skipped"})
			}

			out := Aggregate(def, e, false)
			if out.Classification != tt.want {
				t.Errorf("got %s, want %s", out.Classification, tt.want)
			}
			if out.ExitCode() != tt.exit {
				t.Errorf("got exit code %d, want %d", out.ExitCode(), tt.exit)
			}
		})
	}
}

func TestAggregate_ErrorTracesOnlyWhenVerbose(t *testing.T) {
	def := &batch.JobDefinition{Code: "daily_export", Type: "export"}
	e := batch.NewJobExecution(def, nil)
	e.Status = batch.StatusFailed
	e.ExitStatus = batch.NewExitStatus(batch.ExitFailed)
	e.AddFailureException(batch.FailureException{Class: "IOError", Message: "disk full", Trace: "at write()\n"})

	quiet := Aggregate(def, e, false)
	if got := quiet.Texts(MessageTrace); len(got) != 0 {
		t.Errorf("expected no traces, got %v", got)
	}
	if got := quiet.Texts(MessageError); len(got) != 1 || got[0] != "Error #0 in class IOError: disk full" {
		t.Errorf("got error lines %v", got)
	}

	verbose := Aggregate(def, e, true)
	traces := verbose.Texts(MessageTrace)
	if len(traces) != 1 || traces[0] != "at write()" {
		t.Errorf("got traces %q", traces)
	}
	if verbose.Messages[0].Kind != MessageSummary {
		t.Errorf("expected the summary first, got %v", verbose.Messages[0])
	}
}

func TestAggregate_FallsBackToExecutionDefinition(t *testing.T) {
	e := batch.NewJobExecution(&batch.JobDefinition{Code: "mass_edit", Type: "mass_edit"}, nil)
	e.Status = batch.StatusCompleted
	e.ExitStatus = batch.NewExitStatus(batch.ExitCompleted)

	out := Aggregate(nil, e, false)
	want := "Mass_edit mass_edit has been successfully executed."
	if got := out.Texts(MessageSummary); len(got) != 1 || got[0] != want {
		t.Errorf("got %v, want %q", got, want)
	}
}

func TestAggregate_MultiByteType(t *testing.T) {
	def := &batch.JobDefinition{Code: "catalogue", Type: "élagage"}
	e := batch.NewJobExecution(def, nil)
	e.Status = batch.StatusCompleted
	e.ExitStatus = batch.NewExitStatus(batch.ExitCompleted)

	want := "Élagage catalogue has been successfully executed."
	out := Aggregate(def, e, false)
	if got := out.Texts(MessageSummary); len(got) != 1 || got[0] != want {
		t.Errorf("got %v, want %q", got, want)
	}
}
