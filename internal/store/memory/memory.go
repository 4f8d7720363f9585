// Package memory implements the store interfaces in process memory.
// Every read and write copies, so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/store"

	"github.com/google/uuid"
)

// Store is an in-memory backend, used by tests and dry runs.
type Store struct {
	mu          sync.RWMutex
	definitions map[string]*batch.JobDefinition
	executions  map[uuid.UUID]*batch.JobExecution
	logs        []store.LogEntry
	nextLogID   int64

	// Updates records every UpdateExecution call in order.
	Updates []*batch.JobExecution
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		definitions: make(map[string]*batch.JobDefinition),
		executions:  make(map[uuid.UUID]*batch.JobExecution),
	}
}

func (s *Store) CreateDefinition(ctx context.Context, definition *batch.JobDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[definition.Code]; ok {
		return fmt.Errorf("%w: %s", store.ErrDuplicateCode, definition.Code)
	}
	if definition.ID == uuid.Nil {
		definition.ID = uuid.New()
	}
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = time.Now().UTC()
	}
	s.definitions[definition.Code] = cloneDefinition(definition)
	return nil
}

func (s *Store) ListDefinitions(ctx context.Context) ([]*batch.JobDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*batch.JobDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, cloneDefinition(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) FindDefinition(ctx context.Context, code string) (*batch.JobDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.definitions[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneDefinition(d), nil
}

func (s *Store) FindExecution(ctx context.Context, id uuid.UUID) (*batch.JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) CreateExecution(ctx context.Context, definition *batch.JobDefinition, params *batch.JobParameters) (*batch.JobExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution := batch.NewJobExecution(definition, params)
	s.executions[execution.ID] = execution.Clone()
	return execution, nil
}

func (s *Store) UpdateExecution(ctx context.Context, execution *batch.JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.executions[execution.ID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	execution.UpdatedAt = &now
	stored := execution.Clone()
	if current.Status == batch.StatusStopping && (stored.Status == batch.StatusStarting || stored.Status == batch.StatusRunning) {
		stored.Status = batch.StatusStopping
	}
	s.executions[execution.ID] = stored
	s.Updates = append(s.Updates, execution.Clone())
	return nil
}

func (s *Store) RequestStop(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != batch.StatusStarting && e.Status != batch.StatusRunning {
		return fmt.Errorf("%w: %s", store.ErrNotStoppable, e.Status)
	}
	e.Status = batch.StatusStopping
	return nil
}

// PutExecution stores execution as is. Tests use it to seed executions in
// arbitrary states.
func (s *Store) PutExecution(execution *batch.JobExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[execution.ID] = execution.Clone()
}

// ExecutionCount returns the number of stored executions.
func (s *Store) ExecutionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.executions)
}

func (s *Store) AddLogEntry(ctx context.Context, executionID uuid.UUID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLogID++
	s.logs = append(s.logs, store.LogEntry{
		ID:          s.nextLogID,
		ExecutionID: executionID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (s *Store) GetExecutionLogs(ctx context.Context, executionID uuid.UUID, afterID int64, limit int) ([]store.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.LogEntry
	for _, entry := range s.logs {
		if entry.ExecutionID != executionID || entry.ID <= afterID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func cloneDefinition(d *batch.JobDefinition) *batch.JobDefinition {
	c := *d
	c.RawParameters = batch.NewJobParameters(d.RawParameters).All()
	return &c
}
