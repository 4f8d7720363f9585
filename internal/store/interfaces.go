package store

import (
	"context"
	"database/sql"

	"batchplane/internal/batch"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// JobRepository persists job executions and resolves job definitions.
// Implementations must be read-after-write consistent: a FindExecution that
// follows an UpdateExecution sees the updated state.
type JobRepository interface {
	// FindDefinition returns the job definition with the given code.
	FindDefinition(ctx context.Context, code string) (*batch.JobDefinition, error)

	// FindExecution returns an execution with its step executions loaded.
	FindExecution(ctx context.Context, id uuid.UUID) (*batch.JobExecution, error)

	// CreateExecution stores a new STARTING execution for definition.
	CreateExecution(ctx context.Context, definition *batch.JobDefinition, params *batch.JobParameters) (*batch.JobExecution, error)

	// UpdateExecution persists the execution and all of its step executions.
	UpdateExecution(ctx context.Context, execution *batch.JobExecution) error

	// RequestStop moves a STARTING or RUNNING execution to STOPPING.
	RequestStop(ctx context.Context, id uuid.UUID) error
}

// DefinitionStore manages job definitions.
type DefinitionStore interface {
	CreateDefinition(ctx context.Context, definition *batch.JobDefinition) error
	ListDefinitions(ctx context.Context) ([]*batch.JobDefinition, error)
}

// LogStore keeps the output lines produced by an execution.
type LogStore interface {
	AddLogEntry(ctx context.Context, executionID uuid.UUID, content string) error

	// GetExecutionLogs returns up to limit entries with an id greater than afterID.
	GetExecutionLogs(ctx context.Context, executionID uuid.UUID, afterID int64, limit int) ([]LogEntry, error)
}

// Store is everything the CLI needs from a backend.
type Store interface {
	JobRepository
	DefinitionStore
	LogStore
	Close() error
}
