package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/logger"
	"batchplane/internal/params"
	"batchplane/internal/runtime"
	"batchplane/internal/store"

	"github.com/spf13/cast"
)

// CommandJobName is the registry name of the built-in command job.
const CommandJobName = "command"

// Parameter keys of the command job.
const (
	ParamSteps      = "steps"
	ParamRuntime    = "runtime"
	ParamEnv        = "env"
	ParamTimeout    = "timeout"
	ParamWorkingDir = "working_dir"
)

// RuntimeProvider resolves a runtime by name. *runtime.Factory implements it.
type RuntimeProvider interface {
	Get(name string) (runtime.Runtime, error)
}

// CommandSpec is one entry of the steps parameter.
type CommandSpec struct {
	Name    string
	Command []string
	Image   string
}

// CommandJobConfig wires the command job to its collaborators.
type CommandJobConfig struct {
	Runtimes         RuntimeProvider
	Repository       store.JobRepository
	Logs             store.LogStore
	StopPollInterval time.Duration
	Logger           *slog.Logger
}

// CommandJob runs the shell commands listed in its parameters, one step per
// command.
type CommandJob struct {
	config CommandJobConfig
	steps  *StepJob
	logger *slog.Logger
}

func NewCommandJob(cfg CommandJobConfig) *CommandJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandJob{
		config: cfg,
		logger: logger,
		steps: NewStepJob(StepJobConfig{
			Name:             CommandJobName,
			Repository:       cfg.Repository,
			StopPollInterval: cfg.StopPollInterval,
			Logger:           logger,
		}),
	}
}

func (j *CommandJob) Name() string { return CommandJobName }

func (j *CommandJob) ParameterSchema() params.Schema {
	return params.Schema{
		Defaults: map[string]any{
			ParamRuntime: runtime.NameExec,
			ParamTimeout: 0,
			ParamEnv:     map[string]any{},
		},
		Constraints: []params.Constraint{
			{Key: ParamSteps, Rule: "required"},
			{Key: ParamSteps, Check: func(ctx context.Context, p *batch.JobParameters) error {
				if !p.Has(ParamSteps) {
					return nil
				}
				_, err := ParseCommandSpecs(p)
				return err
			}},
			{Key: ParamRuntime, Rule: "required,oneof=exec docker kubernetes"},
			{Key: ParamTimeout, Rule: "gte=0"},
			{Key: ParamWorkingDir, Check: func(ctx context.Context, p *batch.JobParameters) error {
				if dir := p.String(ParamWorkingDir); dir != "" && !filepath.IsAbs(dir) {
					return fmt.Errorf("%q is not an absolute path", dir)
				}
				return nil
			}},
			{Key: ParamSteps, Groups: []string{params.GroupExecution}, Check: checkExecutables},
		},
	}
}

// Execute builds one CommandStep per configured command and runs them.
// Configuration problems fail the execution without running any step.
func (j *CommandJob) Execute(ctx context.Context, execution *batch.JobExecution) {
	steps, err := j.buildSteps(execution.Parameters)
	if err != nil {
		ended := time.Now().UTC()
		execution.AddFailureException(batch.NewFailureException(err))
		execution.Status = batch.StatusFailed
		execution.ExitStatus = batch.NewExitStatus(batch.ExitFailed, err.Error())
		execution.EndedAt = &ended
		logger.FromContext(logger.WithExecutionID(ctx, execution.ID.String()), j.logger).Error("command job misconfigured", "error", err)
		return
	}
	j.steps.run(ctx, execution, steps)
}

func (j *CommandJob) buildSteps(p *batch.JobParameters) ([]Step, error) {
	specs, err := ParseCommandSpecs(p)
	if err != nil {
		return nil, err
	}
	if j.config.Runtimes == nil {
		return nil, errors.New("no runtime provider configured")
	}
	rt, err := j.config.Runtimes.Get(p.String(ParamRuntime))
	if err != nil {
		return nil, err
	}

	timeout, err := p.Int(ParamTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}

	steps := make([]Step, 0, len(specs))
	for _, spec := range specs {
		steps = append(steps, NewCommandStep(spec.Name, rt, runtime.StartOptions{
			Image:      spec.Image,
			Command:    spec.Command,
			Env:        p.StringMap(ParamEnv),
			WorkingDir: p.String(ParamWorkingDir),
			Timeout:    time.Duration(timeout) * time.Second,
		}, j.config.Logs, j.logger))
	}
	return steps, nil
}

// ParseCommandSpecs reads the steps parameter. A command given as a string
// runs through sh -c; a list is used as argv. Container runtimes require an
// image on every step.
func ParseCommandSpecs(p *batch.JobParameters) ([]CommandSpec, error) {
	items, err := p.MapSlice(ParamSteps)
	if err != nil {
		return nil, fmt.Errorf("steps must be a list of objects: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("at least one step is required")
	}

	needsImage := p.String(ParamRuntime) == runtime.NameDocker || p.String(ParamRuntime) == runtime.NameKubernetes
	seen := make(map[string]bool, len(items))
	specs := make([]CommandSpec, 0, len(items))

	var errs []error
	for i, item := range items {
		spec := CommandSpec{
			Name:  cast.ToString(item["name"]),
			Image: cast.ToString(item["image"]),
		}
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("step_%d", i+1)
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Errorf("step %d: duplicate name %q", i+1, spec.Name))
		}
		seen[spec.Name] = true

		switch command := item["command"].(type) {
		case string:
			if command != "" {
				spec.Command = []string{"sh", "-c", command}
			}
		case nil:
		default:
			spec.Command, err = cast.ToStringSliceE(command)
			if err != nil {
				errs = append(errs, fmt.Errorf("step %q: invalid command: %w", spec.Name, err))
			}
		}
		if len(spec.Command) == 0 {
			errs = append(errs, fmt.Errorf("step %q: command is required", spec.Name))
		}
		if needsImage && spec.Image == "" {
			errs = append(errs, fmt.Errorf("step %q: image is required for the %s runtime", spec.Name, p.String(ParamRuntime)))
		}
		specs = append(specs, spec)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return specs, nil
}

// checkExecutables makes sure local commands can be found before a fresh
// execution is created.
func checkExecutables(ctx context.Context, p *batch.JobParameters) error {
	if rt := p.String(ParamRuntime); rt != "" && rt != runtime.NameExec {
		return nil
	}
	specs, err := ParseCommandSpecs(p)
	if err != nil {
		// Reported by the Default group.
		return nil
	}
	for _, spec := range specs {
		if _, err := exec.LookPath(spec.Command[0]); err != nil {
			return fmt.Errorf("step %q: executable %q not found", spec.Name, spec.Command[0])
		}
	}
	return nil
}
