package job

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/params"
	"batchplane/internal/store/memory"
)

type funcStep struct {
	name string
	fn   func(ctx context.Context, step *batch.StepExecution) error
}

func (s funcStep) Name() string { return s.name }

func (s funcStep) Execute(ctx context.Context, step *batch.StepExecution) error {
	return s.fn(ctx, step)
}

func okStep(name string) funcStep {
	return funcStep{name: name, fn: func(ctx context.Context, step *batch.StepExecution) error {
		step.IncrementRead()
		step.IncrementWrite()
		return nil
	}}
}

func newExecution(t *testing.T, s *memory.Store) *batch.JobExecution {
	t.Helper()
	e, err := s.CreateExecution(context.Background(), &batch.JobDefinition{Code: "test_job", JobName: "test"}, batch.NewJobParameters(nil))
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}
	return e
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	j := NewStepJob(StepJobConfig{Name: "b"})

	if err := r.Register(j); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(NewStepJob(StepJobConfig{Name: "b"})); err == nil {
		t.Error("expected error for duplicate name")
	}
	_ = r.Register(NewStepJob(StepJobConfig{Name: "a"}))

	got, err := r.Get("b")
	if err != nil || got != Job(j) {
		t.Errorf("Get returned %v, %v", got, err)
	}

	_, err = r.Get("missing")
	var notFound *batch.NotFoundError
	if !errors.As(err, &notFound) || notFound.Kind != "job" {
		t.Errorf("expected job NotFoundError, got %v", err)
	}

	if names := r.Names(); strings.Join(names, ",") != "a,b" {
		t.Errorf("got names %v, want [a b]", names)
	}
}

func TestStepJob_Completes(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)

	j := NewStepJob(StepJobConfig{
		Name:       "test",
		Steps:      []Step{okStep("first"), okStep("second")},
		Repository: s,
	})
	j.Execute(context.Background(), e)

	if e.Status != batch.StatusCompleted || e.ExitStatus.Code != batch.ExitCompleted {
		t.Errorf("got %s/%s, want COMPLETED/COMPLETED", e.Status, e.ExitStatus.Code)
	}
	if e.StartedAt == nil || e.EndedAt == nil {
		t.Error("expected start and end times")
	}
	if len(e.StepExecutions) != 2 {
		t.Fatalf("got %d step executions, want 2", len(e.StepExecutions))
	}
	for _, step := range e.StepExecutions {
		if step.Status != batch.StatusCompleted {
			t.Errorf("step %s: got status %s", step.StepName, step.Status)
		}
	}
	// One checkpoint when running plus one per step.
	if len(s.Updates) != 3 {
		t.Errorf("got %d checkpoints, want 3", len(s.Updates))
	}
	if s.Updates[0].Status != batch.StatusRunning {
		t.Errorf("first checkpoint status %s, want RUNNING", s.Updates[0].Status)
	}
}

func TestStepJob_FirstFailureEndsJob(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)
	ran := false

	j := NewStepJob(StepJobConfig{
		Name: "test",
		Steps: []Step{
			okStep("first"),
			funcStep{name: "broken", fn: func(ctx context.Context, step *batch.StepExecution) error {
				return errors.New("disk full")
			}},
			funcStep{name: "never", fn: func(ctx context.Context, step *batch.StepExecution) error {
				ran = true
				return nil
			}},
		},
		Repository: s,
	})
	j.Execute(context.Background(), e)

	if ran {
		t.Error("step after a failure should not run")
	}
	if e.Status != batch.StatusFailed || e.ExitStatus.Code != batch.ExitFailed {
		t.Errorf("got %s/%s, want FAILED/FAILED", e.Status, e.ExitStatus.Code)
	}
	if e.ExitStatus.Description != "disk full" {
		t.Errorf("job exit description = %q, want the failing step's", e.ExitStatus.Description)
	}
	broken := e.StepExecutions[1]
	if len(broken.FailureExceptions) != 1 || broken.FailureExceptions[0].Message != "disk full" {
		t.Errorf("unexpected failure exceptions %+v", broken.FailureExceptions)
	}
}

func TestStepJob_RecoversPanic(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)

	j := NewStepJob(StepJobConfig{
		Name: "test",
		Steps: []Step{funcStep{name: "boom", fn: func(ctx context.Context, step *batch.StepExecution) error {
			panic("nil map")
		}}},
		Repository: s,
	})
	j.Execute(context.Background(), e)

	if e.Status != batch.StatusFailed {
		t.Errorf("got status %s, want FAILED", e.Status)
	}
	failures := e.StepExecutions[0].FailureExceptions
	if len(failures) != 1 || !strings.Contains(failures[0].Message, "nil map") {
		t.Errorf("unexpected failure exceptions %+v", failures)
	}
	if failures[0].Trace == "" {
		t.Error("expected a trace")
	}
}

func TestStepJob_StopBetweenSteps(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)
	ran := false

	j := NewStepJob(StepJobConfig{
		Name: "test",
		Steps: []Step{
			funcStep{name: "first", fn: func(ctx context.Context, step *batch.StepExecution) error {
				return s.RequestStop(ctx, step.JobExecutionID)
			}},
			funcStep{name: "second", fn: func(ctx context.Context, step *batch.StepExecution) error {
				ran = true
				return nil
			}},
		},
		Repository:       s,
		StopPollInterval: time.Hour,
	})
	j.Execute(context.Background(), e)

	if ran {
		t.Error("second step should not run after a stop request")
	}
	if e.Status != batch.StatusStopped || e.ExitStatus.Code != batch.ExitStopped {
		t.Errorf("got %s/%s, want STOPPED/STOPPED", e.Status, e.ExitStatus.Code)
	}
	if !e.IsSuccessful() {
		t.Error("an honoured stop counts as success")
	}
	if e.StepExecutions[0].Status != batch.StatusCompleted {
		t.Errorf("first step status %s, want COMPLETED", e.StepExecutions[0].Status)
	}
}

func TestStepJob_ResumedStoppingExecution(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)
	e.Status = batch.StatusStopping
	s.PutExecution(e)
	ran := false

	j := NewStepJob(StepJobConfig{
		Name: "test",
		Steps: []Step{funcStep{name: "first", fn: func(ctx context.Context, step *batch.StepExecution) error {
			ran = true
			return nil
		}}},
		Repository: s,
	})
	j.Execute(context.Background(), e)

	if ran {
		t.Error("no step should run for a stopping execution")
	}
	if e.Status != batch.StatusStopped {
		t.Errorf("got status %s, want STOPPED", e.Status)
	}
}

func TestStepJob_ResumeSkipsCompletedSteps(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)
	done := e.AddStepExecution("first")
	done.Status = batch.StatusCompleted
	s.PutExecution(e)

	var ran []string
	record := func(name string) funcStep {
		return funcStep{name: name, fn: func(ctx context.Context, step *batch.StepExecution) error {
			ran = append(ran, name)
			return nil
		}}
	}

	j := NewStepJob(StepJobConfig{Name: "test", Steps: []Step{record("first"), record("second")}, Repository: s})
	j.Execute(context.Background(), e)

	if strings.Join(ran, ",") != "second" {
		t.Errorf("got steps %v, want [second]", ran)
	}
	if len(e.StepExecutions) != 2 {
		t.Errorf("got %d step executions, want 2", len(e.StepExecutions))
	}
}

func TestStopWatcher_LatchesInBackground(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)

	w := NewStopWatcher(s, e.ID, 10*time.Millisecond, nil)
	w.Start(context.Background())
	defer w.Close()

	if w.Stopped() {
		t.Fatal("watcher stopped before any request")
	}
	if err := s.RequestStop(context.Background(), e.ID); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !w.Stopped() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !w.Stopped() {
		t.Error("watcher did not observe the stop request")
	}
}

func TestStepJob_SchemaIsExposed(t *testing.T) {
	schema := params.Schema{Defaults: map[string]any{"a": 1}}
	j := NewStepJob(StepJobConfig{Name: "test", Schema: schema})
	if j.ParameterSchema().Defaults["a"] != 1 {
		t.Error("schema not exposed")
	}
}
