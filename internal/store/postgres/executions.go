package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/store"

	"github.com/google/uuid"
)

const executionQuery = `
	SELECT e.id, e.status, e.exit_code, e.exit_description, e.pid, e.username,
		e.execution_context, e.raw_parameters, e.failure_exceptions,
		e.created_at, e.started_at, e.ended_at, e.updated_at,
		d.id, d.code, d.job_name, d.type, d.label, d.raw_parameters, d.created_at
	FROM job_executions e
	JOIN job_definitions d ON d.id = e.definition_id
	WHERE e.id = $1
`

const stepQuery = `
	SELECT id, job_execution_id, step_name, status, exit_code, exit_description,
		warnings, failure_exceptions, read_count, write_count, summary,
		started_at, ended_at
	FROM step_executions
	WHERE job_execution_id = $1
	ORDER BY position ASC
`

// FindExecution loads an execution, its definition and its step executions.
func (s *Store) FindExecution(ctx context.Context, id uuid.UUID) (*batch.JobExecution, error) {
	var (
		execution  batch.JobExecution
		definition batch.JobDefinition
		exitCode   string
		execCtx    []byte
		params     []byte
		failures   []byte
		defParams  []byte
	)

	err := s.db.QueryRowContext(ctx, executionQuery, id).Scan(
		&execution.ID, &execution.Status, &exitCode, &execution.ExitStatus.Description,
		&execution.PID, &execution.User,
		&execCtx, &params, &failures,
		&execution.CreatedAt, &execution.StartedAt, &execution.EndedAt, &execution.UpdatedAt,
		&definition.ID, &definition.Code, &definition.JobName, &definition.Type,
		&definition.Label, &defParams, &definition.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	execution.ExitStatus.Code = batch.ExitCode(exitCode)

	if err := decodeJSON(defParams, &definition.RawParameters); err != nil {
		return nil, err
	}
	execution.Definition = &definition

	if len(execCtx) > 0 {
		execution.ExecutionContext = batch.NewExecutionContext()
		if err := execution.ExecutionContext.UnmarshalJSON(execCtx); err != nil {
			return nil, fmt.Errorf("execution %s: %w", id, err)
		}
	}

	var values map[string]any
	if err := decodeJSON(params, &values); err != nil {
		return nil, err
	}
	execution.Parameters = batch.NewJobParameters(values)

	if err := decodeJSON(failures, &execution.FailureExceptions); err != nil {
		return nil, err
	}

	steps, err := s.findSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	execution.StepExecutions = steps

	return &execution, nil
}

func (s *Store) findSteps(ctx context.Context, executionID uuid.UUID) ([]*batch.StepExecution, error) {
	rows, err := s.db.QueryContext(ctx, stepQuery, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*batch.StepExecution
	for rows.Next() {
		var (
			step     batch.StepExecution
			exitCode string
			warnings []byte
			failures []byte
			summary  []byte
		)
		if err := rows.Scan(
			&step.ID, &step.JobExecutionID, &step.StepName, &step.Status,
			&exitCode, &step.ExitStatus.Description,
			&warnings, &failures, &step.ReadCount, &step.WriteCount, &summary,
			&step.StartedAt, &step.EndedAt,
		); err != nil {
			return nil, err
		}
		step.ExitStatus.Code = batch.ExitCode(exitCode)
		if err := decodeJSON(warnings, &step.Warnings); err != nil {
			return nil, err
		}
		if err := decodeJSON(failures, &step.FailureExceptions); err != nil {
			return nil, err
		}
		if err := decodeJSON(summary, &step.Summary); err != nil {
			return nil, err
		}
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

// CreateExecution inserts a new STARTING execution for definition.
func (s *Store) CreateExecution(ctx context.Context, definition *batch.JobDefinition, params *batch.JobParameters) (*batch.JobExecution, error) {
	execution := batch.NewJobExecution(definition, params)

	execCtx, err := json.Marshal(execution.ExecutionContext)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(nonNilMap(params.All()))
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO job_executions (id, definition_id, status, exit_code, exit_description, execution_context, raw_parameters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.db.ExecContext(ctx, query,
		execution.ID,
		definition.ID,
		execution.Status,
		execution.ExitStatus.Code,
		execution.ExitStatus.Description,
		execCtx,
		raw,
		execution.CreatedAt,
	); err != nil {
		return nil, err
	}

	return execution, nil
}

// UpdateExecution writes the execution row and upserts every step execution
// in one transaction. A STARTING or RUNNING write keeps a pending STOPPING
// status so a checkpoint cannot swallow a stop request.
func (s *Store) UpdateExecution(ctx context.Context, execution *batch.JobExecution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var execCtx []byte
	if execution.ExecutionContext != nil {
		if execCtx, err = json.Marshal(execution.ExecutionContext); err != nil {
			return err
		}
	}
	failures, err := json.Marshal(nonNilSlice(execution.FailureExceptions))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE job_executions
		SET status = CASE WHEN status = 'STOPPING' AND $2::text IN ('STARTING', 'RUNNING') THEN status ELSE $2::text END,
			exit_code = $3, exit_description = $4, pid = $5, username = $6,
			execution_context = $7, failure_exceptions = $8,
			started_at = $9, ended_at = $10, updated_at = $11
		WHERE id = $1
	`,
		execution.ID,
		execution.Status,
		execution.ExitStatus.Code,
		execution.ExitStatus.Description,
		execution.PID,
		execution.User,
		execCtx,
		failures,
		execution.StartedAt,
		execution.EndedAt,
		now,
	)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return store.ErrNotFound
	}

	for position, step := range execution.StepExecutions {
		if err := s.upsertStep(ctx, tx, position, step); err != nil {
			return fmt.Errorf("step %s: %w", step.StepName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	execution.UpdatedAt = &now
	return nil
}

func (s *Store) upsertStep(ctx context.Context, tx store.DBTransaction, position int, step *batch.StepExecution) error {
	executor := s.getExecutor(tx)

	warnings, err := json.Marshal(nonNilSlice(step.Warnings))
	if err != nil {
		return err
	}
	failures, err := json.Marshal(nonNilSlice(step.FailureExceptions))
	if err != nil {
		return err
	}
	summary, err := json.Marshal(nonNilMap(step.Summary))
	if err != nil {
		return err
	}

	_, err = executor.ExecContext(ctx, `
		INSERT INTO step_executions (id, job_execution_id, position, step_name, status, exit_code, exit_description,
			warnings, failure_exceptions, read_count, write_count, summary, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			exit_code = EXCLUDED.exit_code,
			exit_description = EXCLUDED.exit_description,
			warnings = EXCLUDED.warnings,
			failure_exceptions = EXCLUDED.failure_exceptions,
			read_count = EXCLUDED.read_count,
			write_count = EXCLUDED.write_count,
			summary = EXCLUDED.summary,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at
	`,
		step.ID,
		step.JobExecutionID,
		position,
		step.StepName,
		step.Status,
		step.ExitStatus.Code,
		step.ExitStatus.Description,
		warnings,
		failures,
		step.ReadCount,
		step.WriteCount,
		summary,
		step.StartedAt,
		step.EndedAt,
	)
	return err
}

// RequestStop moves a STARTING or RUNNING execution to STOPPING. The running
// job notices the change on its next poll.
func (s *Store) RequestStop(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE job_executions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`, id, batch.StatusStopping, batch.StatusStarting, batch.StatusRunning)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM job_executions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", store.ErrNotStoppable, status)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
