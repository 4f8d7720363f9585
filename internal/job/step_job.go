package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/logger"
	"batchplane/internal/params"
	"batchplane/internal/store"
)

// Step is one unit of work of a StepJob.
type Step interface {
	Name() string
	Execute(ctx context.Context, step *batch.StepExecution) error
}

// StepJobConfig configures a StepJob.
type StepJobConfig struct {
	Name             string
	Schema           params.Schema
	Steps            []Step
	Repository       store.JobRepository
	StopPollInterval time.Duration
	Logger           *slog.Logger
}

// StepJob runs its steps in order. After every step it checkpoints the
// execution through the repository; between steps it honours stop requests.
// The first failing step ends the job.
type StepJob struct {
	config StepJobConfig
	logger *slog.Logger
}

func NewStepJob(cfg StepJobConfig) *StepJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StepJob{config: cfg, logger: logger}
}

func (j *StepJob) Name() string                   { return j.config.Name }
func (j *StepJob) ParameterSchema() params.Schema { return j.config.Schema }

func (j *StepJob) Execute(ctx context.Context, execution *batch.JobExecution) {
	j.run(ctx, execution, j.config.Steps)
}

func (j *StepJob) run(ctx context.Context, execution *batch.JobExecution, steps []Step) {
	log := logger.FromContext(logger.WithExecutionID(ctx, execution.ID.String()), j.logger).With("job", j.config.Name)

	watcher := NewStopWatcher(j.config.Repository, execution.ID, j.config.StopPollInterval, log)
	stopRequested := execution.Status.IsStopping()

	now := time.Now().UTC()
	execution.Status = batch.StatusRunning
	execution.ExitStatus = batch.NewExitStatus(batch.ExitExecuting)
	if execution.StartedAt == nil {
		execution.StartedAt = &now
	}
	j.checkpoint(ctx, execution, log)

	if !stopRequested {
		watcher.Start(ctx)
		defer watcher.Close()
	}

	completed := completedSteps(execution)
	failed := false
	var ran []*batch.StepExecution

	for _, step := range steps {
		if stopRequested || watcher.Stopped() || watcher.Poll(ctx) {
			stopRequested = true
			break
		}
		if completed[step.Name()] {
			log.Info("step already completed, skipping", "step", step.Name())
			continue
		}

		stepExecution := execution.AddStepExecution(step.Name())
		ran = append(ran, stepExecution)
		if err := j.runStep(ctx, step, stepExecution, log); err != nil {
			failed = true
		}
		j.checkpoint(ctx, execution, log)

		if failed {
			break
		}
	}

	ended := time.Now().UTC()
	execution.EndedAt = &ended

	exitStatus := batch.NewExitStatus(batch.ExitCompleted)
	switch {
	case failed:
		execution.Status = batch.StatusFailed
		exitStatus = batch.NewExitStatus(batch.ExitFailed)
	case stopRequested:
		execution.Status = batch.StatusStopped
		exitStatus = batch.NewExitStatus(batch.ExitStopped)
	default:
		execution.Status = batch.StatusCompleted
	}
	// The job exit status is the most severe of the steps run here.
	for _, s := range ran {
		exitStatus = exitStatus.And(s.ExitStatus)
	}
	execution.ExitStatus = exitStatus
	log.Info("job finished", "status", execution.Status, "exit_code", execution.ExitStatus.Code)
}

// runStep executes one step and records its outcome. Panics are recovered
// into a failure exception.
func (j *StepJob) runStep(ctx context.Context, step Step, stepExecution *batch.StepExecution, log *slog.Logger) (err error) {
	started := time.Now().UTC()
	stepExecution.StartedAt = &started
	stepExecution.Status = batch.StatusRunning
	log = log.With("step", step.Name())
	log.Info("step started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", step.Name(), r)
			stepExecution.AddFailureException(batch.NewFailureException(err))
		}

		ended := time.Now().UTC()
		stepExecution.EndedAt = &ended
		if err != nil {
			stepExecution.Status = batch.StatusFailed
			stepExecution.ExitStatus = batch.NewExitStatus(batch.ExitFailed, err.Error())
			log.Error("step failed", "error", err)
			return
		}
		stepExecution.Status = batch.StatusCompleted
		stepExecution.ExitStatus = batch.NewExitStatus(batch.ExitCompleted)
		log.Info("step completed", "read", stepExecution.ReadCount, "warnings", len(stepExecution.Warnings))
	}()

	if err = step.Execute(ctx, stepExecution); err != nil {
		stepExecution.AddFailureException(batch.NewFailureException(err))
	}
	return err
}

func (j *StepJob) checkpoint(ctx context.Context, execution *batch.JobExecution, log *slog.Logger) {
	if j.config.Repository == nil {
		return
	}
	if err := j.config.Repository.UpdateExecution(ctx, execution); err != nil {
		log.Warn("checkpoint failed", "error", err)
	}
}

// completedSteps returns the names of steps that finished in an earlier run
// of a resumed execution.
func completedSteps(execution *batch.JobExecution) map[string]bool {
	done := make(map[string]bool)
	for _, s := range execution.StepExecutions {
		if s.Status == batch.StatusCompleted {
			done[s.StepName] = true
		}
	}
	return done
}
