// Package store contains the persistence boundary of batchplane.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a definition or execution does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCode is returned when a definition code is already used.
	ErrDuplicateCode = errors.New("duplicate job definition code")

	// ErrNotStoppable is returned by RequestStop for executions that are not
	// starting or running.
	ErrNotStoppable = errors.New("execution is not running")
)

// LogEntry is one chunk of output shipped by a running step.
type LogEntry struct {
	ID          int64
	ExecutionID uuid.UUID
	Content     string
	CreatedAt   time.Time
}
