// Package runner executes one job per invocation: it resolves the target
// execution, checkpoints it around the job body and classifies the result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/job"
	"batchplane/internal/logger"
	"batchplane/internal/notify"
	"batchplane/internal/observability"
	"batchplane/internal/params"
	"batchplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Invocation identifies the job to run and carries the caller's options.
// Exactly one of Code and ExecutionID selects the target; with both set the
// execution wins and Code must match its definition.
type Invocation struct {
	Code        string
	ExecutionID string
	Config      string // JSON object of parameter overrides, fresh runs only
	Username    string // fresh runs only
	Email       string
	Verbose     bool
}

// Config wires a Runner.
type Config struct {
	Repository store.JobRepository
	Registry   *job.Registry
	Validator  *params.Validator
	Notifier   notify.Notifier
	Metrics    *observability.Metrics

	PushgatewayURL string
	// LogDir receives <execution_id>/batch.log when set.
	LogDir   string
	LogLevel slog.Level
	Logger   *slog.Logger

	// PID returns the process id recorded on the execution. Defaults to os.Getpid.
	PID func() int
}

type Runner struct {
	repo      store.JobRepository
	registry  *job.Registry
	validator *params.Validator
	notifier  notify.Notifier
	metrics   *observability.Metrics
	config    Config
	logger    *slog.Logger
	pid       func() int
	tracer    trace.Tracer
}

func New(cfg Config) *Runner {
	r := &Runner{
		repo:      cfg.Repository,
		registry:  cfg.Registry,
		validator: cfg.Validator,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		config:    cfg,
		logger:    cfg.Logger,
		pid:       cfg.PID,
		tracer:    otel.Tracer(observability.TracerName),
	}
	if r.validator == nil {
		r.validator = params.NewValidator()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.pid == nil {
		r.pid = os.Getpid
	}
	return r
}

// Run executes the invocation. A returned error means the job body was never
// reached and nothing was classified; job failures are reported through the
// Outcome instead.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "batch.run")
	defer span.End()

	outcome, err := r.run(ctx, inv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("batch.execution_id", outcome.Execution.ID.String()),
		attribute.String("batch.classification", string(outcome.Classification)),
	)
	return outcome, nil
}

func (r *Runner) run(ctx context.Context, inv Invocation) (*Outcome, error) {
	started := time.Now()

	if inv.Email != "" {
		if err := r.validator.ValidateEmail(inv.Email); err != nil {
			return nil, &batch.InvalidInvocationError{Reason: err.Error()}
		}
		if r.notifier != nil {
			r.notifier.SetRecipientEmail(inv.Email)
		}
	}

	var (
		execution *batch.JobExecution
		runnable  job.Job
		err       error
	)
	if inv.ExecutionID != "" {
		execution, runnable, err = r.resume(ctx, inv)
	} else {
		execution, runnable, err = r.prepare(ctx, inv)
	}
	if err != nil {
		return nil, err
	}
	definition := execution.Definition

	ctx = logger.WithExecutionID(ctx, execution.ID.String())
	log := logger.FromContext(ctx, r.logger).With("job_code", definition.Code)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("batch.job_code", definition.Code))

	previousPID := execution.PID
	execution.PID = r.pid()
	if previousPID != 0 && previousPID != execution.PID {
		log.Info("replacing process id of resumed execution", "previous_pid", previousPID, "pid", execution.PID)
	}
	if err := r.repo.UpdateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to persist execution before run: %w", err)
	}

	base := r.logger
	if r.config.LogDir != "" {
		handler, closer, path, err := logger.OpenExecutionLog(r.config.LogDir, execution.ID.String(), r.config.LogLevel)
		if err != nil {
			log.Warn("execution log file disabled", "error", err)
		} else {
			defer closer.Close()
			base = slog.New(logger.Tee(r.logger.Handler(), handler))
			logger.FromContext(ctx, base).Info("writing execution log", "path", path)
		}
	}
	base = base.With("job_code", definition.Code)
	jobLog := logger.FromContext(ctx, base)

	jobLog.Info("job started", "job", runnable.Name(), "pid", execution.PID)
	r.execute(logger.NewContext(ctx, base), runnable, execution, jobLog)

	// The final state is persisted even when the caller cancelled ctx.
	persistCtx := context.WithoutCancel(ctx)
	if err := r.repo.UpdateExecution(persistCtx, execution); err != nil {
		jobLog.Error("failed to persist execution after run", "error", err)
	}

	outcome := Aggregate(definition, execution, inv.Verbose)
	jobLog.Info("job ended",
		"status", execution.Status,
		"exit_status", execution.ExitStatus.String(),
		"classification", outcome.Classification,
	)

	if r.notifier != nil {
		if err := r.notifier.Notify(persistCtx, definition, execution); err != nil {
			jobLog.Warn("notification failed", "error", err)
		}
	}

	r.record(persistCtx, &outcome, started, jobLog)
	return &outcome, nil
}

// resume loads an execution left in STARTING or STOPPING state.
func (r *Runner) resume(ctx context.Context, inv Invocation) (*batch.JobExecution, job.Job, error) {
	if inv.Config != "" {
		return nil, nil, &batch.InvalidInvocationError{Reason: "configuration cannot be specified when resuming a job execution"}
	}
	if inv.Username != "" {
		return nil, nil, &batch.InvalidInvocationError{Reason: "username cannot be specified when resuming a job execution"}
	}

	id, err := uuid.Parse(inv.ExecutionID)
	if err != nil {
		return nil, nil, &batch.InvalidInvocationError{Reason: fmt.Sprintf("invalid job execution id %q", inv.ExecutionID)}
	}

	execution, err := r.repo.FindExecution(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, &batch.NotFoundError{Kind: "job execution", Identifier: inv.ExecutionID}
		}
		return nil, nil, fmt.Errorf("failed to load job execution: %w", err)
	}
	if !execution.Status.Resumable() {
		return nil, nil, &batch.InvalidExecutionStateError{ExecutionID: execution.ID, Status: execution.Status}
	}
	if execution.Definition == nil {
		return nil, nil, fmt.Errorf("job execution %s has no job definition", execution.ID)
	}
	if inv.Code != "" && inv.Code != execution.Definition.Code {
		return nil, nil, &batch.InvalidInvocationError{
			Reason: fmt.Sprintf("job execution %s belongs to job %q, not %q", execution.ID, execution.Definition.Code, inv.Code),
		}
	}
	if execution.ExecutionContext == nil {
		execution.ExecutionContext = batch.NewExecutionContext()
	}

	runnable, err := r.registry.Get(execution.Definition.JobName)
	if err != nil {
		return nil, nil, err
	}
	return execution, runnable, nil
}

// prepare resolves and validates the parameters of a fresh run and creates
// its execution.
func (r *Runner) prepare(ctx context.Context, inv Invocation) (*batch.JobExecution, job.Job, error) {
	if inv.Code == "" {
		return nil, nil, &batch.InvalidInvocationError{Reason: "a job code or a job execution id is required"}
	}

	definition, err := r.repo.FindDefinition(ctx, inv.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, &batch.NotFoundError{Kind: "job definition", Identifier: inv.Code}
		}
		return nil, nil, fmt.Errorf("failed to load job definition: %w", err)
	}

	runnable, err := r.registry.Get(definition.JobName)
	if err != nil {
		return nil, nil, err
	}

	overrides, err := params.DecodeConfiguration(inv.Config)
	if err != nil {
		return nil, nil, err
	}
	schema := runnable.ParameterSchema()
	parameters := params.Resolve(schema, definition.RawParameters, overrides)
	if err := r.validator.Validate(ctx, definition, runnable.Name(), schema, parameters, params.GroupDefault, params.GroupExecution); err != nil {
		return nil, nil, err
	}

	execution, err := r.repo.CreateExecution(ctx, definition, parameters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create job execution: %w", err)
	}

	if inv.Username != "" {
		execution.User = inv.Username
		if err := r.repo.UpdateExecution(ctx, execution); err != nil {
			return nil, nil, fmt.Errorf("failed to persist username: %w", err)
		}
	}
	return execution, runnable, nil
}

// execute runs the job body. A panic is recorded as a failure of the
// execution instead of crashing the process.
func (r *Runner) execute(ctx context.Context, runnable job.Job, execution *batch.JobExecution, log *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("job %s panicked: %v", runnable.Name(), rec)
			log.Error("job panicked", "panic", rec)

			ended := time.Now().UTC()
			execution.AddFailureException(batch.NewFailureException(err))
			execution.Status = batch.StatusFailed
			execution.ExitStatus = batch.NewExitStatus(batch.ExitFailed, err.Error())
			execution.EndedAt = &ended
		}
	}()
	runnable.Execute(ctx, execution)
}

func (r *Runner) record(ctx context.Context, outcome *Outcome, started time.Time, log *slog.Logger) {
	if r.metrics == nil {
		return
	}
	execution := outcome.Execution
	elapsed := time.Since(started)
	if execution.StartedAt != nil && execution.EndedAt != nil {
		elapsed = execution.EndedAt.Sub(*execution.StartedAt)
	}
	code := execution.DefinitionCode()

	r.metrics.RecordExecution(ctx, code, string(outcome.Classification), elapsed.Seconds(), execution.WarningCount())
	if err := r.metrics.Push(ctx, r.config.PushgatewayURL, code); err != nil {
		log.Warn("failed to push metrics", "error", err)
	}
}
