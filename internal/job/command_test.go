package job

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/params"
	"batchplane/internal/runtime"
	"batchplane/internal/store/memory"
)

func TestCommandStep_CollectsOutput(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)
	step := e.AddStepExecution("export")

	cs := NewCommandStep("export", runtime.NewExecRuntime(t.TempDir()), runtime.StartOptions{
		Command: []string{"sh", "-c", "echo one; echo 'WARNING: row 2 skipped'; echo three"},
	}, s, nil)

	if err := cs.Execute(context.Background(), step); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if step.ReadCount != 3 {
		t.Errorf("got read count %d, want 3", step.ReadCount)
	}
	if len(step.Warnings) != 1 || step.Warnings[0].Reason != "row 2 skipped" {
		t.Errorf("unexpected warnings %+v", step.Warnings)
	}
	if step.Summary["exit_code"] != 0 {
		t.Errorf("got exit code summary %v", step.Summary["exit_code"])
	}

	entries, _ := s.GetExecutionLogs(context.Background(), e.ID, 0, 10)
	var shipped []string
	for _, entry := range entries {
		shipped = append(shipped, entry.Content)
	}
	if got := strings.Join(shipped, "\n"); got != "one\nWARNING: row 2 skipped\nthree" {
		t.Errorf("got shipped logs %q", got)
	}
}

func TestCommandStep_NonZeroExit(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)
	step := e.AddStepExecution("broken")

	cs := NewCommandStep("broken", runtime.NewExecRuntime(t.TempDir()), runtime.StartOptions{
		Command: []string{"sh", "-c", "exit 3"},
	}, s, nil)

	err := cs.Execute(context.Background(), step)
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitCodeError, got %v", err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("got exit code %d, want 3", exitErr.ExitCode)
	}
	if f := batch.NewFailureException(err); f.Code != 3 {
		t.Errorf("got failure code %d, want 3", f.Code)
	}
}

func TestCommandStep_Timeout(t *testing.T) {
	s := memory.New()
	e := newExecution(t, s)
	step := e.AddStepExecution("slow")

	cs := NewCommandStep("slow", runtime.NewExecRuntime(t.TempDir()), runtime.StartOptions{
		Command: []string{"sleep", "10"},
		Timeout: 100 * time.Millisecond,
	}, s, nil)

	err := cs.Execute(context.Background(), step)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestCommandStep_StartFailure(t *testing.T) {
	e := batch.NewJobExecution(&batch.JobDefinition{Code: "x"}, nil)
	step := e.AddStepExecution("missing")

	cs := NewCommandStep("missing", runtime.NewExecRuntime(t.TempDir()), runtime.StartOptions{
		Command: []string{"nonexistent-binary-xyz"},
	}, nil, nil)

	if err := cs.Execute(context.Background(), step); err == nil {
		t.Error("expected error for a missing binary")
	}
}

func TestParseCommandSpecs(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		want    []CommandSpec
		wantErr string
	}{
		{
			name: "string and list commands",
			values: map[string]any{
				ParamSteps: []any{
					map[string]any{"name": "a", "command": "echo hi"},
					map[string]any{"command": []any{"ls", "-l"}},
				},
			},
			want: []CommandSpec{
				{Name: "a", Command: []string{"sh", "-c", "echo hi"}},
				{Name: "step_2", Command: []string{"ls", "-l"}},
			},
		},
		{
			name:    "empty list",
			values:  map[string]any{ParamSteps: []any{}},
			wantErr: "at least one step",
		},
		{
			name: "missing command and duplicate name",
			values: map[string]any{ParamSteps: []any{
				map[string]any{"name": "a", "command": "true"},
				map[string]any{"name": "a"},
			}},
			wantErr: "duplicate name",
		},
		{
			name: "docker needs an image",
			values: map[string]any{
				ParamRuntime: "docker",
				ParamSteps:   []any{map[string]any{"name": "a", "command": "true"}},
			},
			wantErr: "image is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommandSpecs(batch.NewJobParameters(tt.values))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("got error %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d specs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Name != tt.want[i].Name || strings.Join(got[i].Command, " ") != strings.Join(tt.want[i].Command, " ") {
					t.Errorf("spec %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCommandJob_SchemaValidation(t *testing.T) {
	j := NewCommandJob(CommandJobConfig{})
	schema := j.ParameterSchema()
	v := params.NewValidator()
	def := &batch.JobDefinition{Code: "nightly", JobName: CommandJobName}

	valid := params.Resolve(schema, map[string]any{
		ParamSteps: []any{map[string]any{"name": "a", "command": "true"}},
	}, nil)
	if err := v.Validate(context.Background(), def, j.Name(), schema, valid, params.GroupDefault, params.GroupExecution); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}

	invalid := params.Resolve(schema, map[string]any{
		ParamRuntime:    "podman",
		ParamTimeout:    -1,
		ParamWorkingDir: "relative/dir",
	}, nil)
	err := v.Validate(context.Background(), def, j.Name(), schema, invalid, params.GroupDefault)
	var verr *batch.ParameterValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ParameterValidationError, got %v", err)
	}
	if len(verr.Violations) != 4 {
		t.Errorf("got %d violations, want 4: %v", len(verr.Violations), verr.Violations)
	}

	missingBinary := params.Resolve(schema, map[string]any{
		ParamSteps: []any{map[string]any{"name": "a", "command": []any{"nonexistent-binary-xyz"}}},
	}, nil)
	if err := v.Validate(context.Background(), def, j.Name(), schema, missingBinary, params.GroupDefault); err != nil {
		t.Errorf("Default group should not look up executables: %v", err)
	}
	if err := v.Validate(context.Background(), def, j.Name(), schema, missingBinary, params.GroupExecution); err == nil {
		t.Error("expected Execution group to reject a missing executable")
	}
}

func TestCommandJob_Execute(t *testing.T) {
	s := memory.New()
	factory := runtime.NewFactory(runtime.FactoryConfig{WorkDir: t.TempDir()}, nil)
	j := NewCommandJob(CommandJobConfig{Runtimes: factory, Repository: s, Logs: s})

	e := newExecution(t, s)
	e.Parameters = params.Resolve(j.ParameterSchema(), map[string]any{
		ParamSteps: []any{
			map[string]any{"name": "extract", "command": "echo extracted"},
			map[string]any{"name": "load", "command": "echo 'WARNING: 1 row rejected'"},
		},
	}, nil)

	j.Execute(context.Background(), e)

	if e.Status != batch.StatusCompleted {
		t.Fatalf("got status %s, want COMPLETED: %+v", e.Status, e.StepExecutions)
	}
	if e.WarningCount() != 1 {
		t.Errorf("got %d warnings, want 1", e.WarningCount())
	}
}

func TestCommandJob_MisconfiguredFails(t *testing.T) {
	s := memory.New()
	j := NewCommandJob(CommandJobConfig{Runtimes: runtime.NewFactory(runtime.FactoryConfig{}, nil), Repository: s})

	e := newExecution(t, s)
	e.Parameters = batch.NewJobParameters(map[string]any{ParamRuntime: "exec"})

	j.Execute(context.Background(), e)

	if e.Status != batch.StatusFailed || e.ExitStatus.Code != batch.ExitFailed {
		t.Errorf("got %s/%s, want FAILED/FAILED", e.Status, e.ExitStatus.Code)
	}
	if len(e.FailureExceptions) != 1 {
		t.Errorf("got %d failure exceptions, want 1", len(e.FailureExceptions))
	}
}
