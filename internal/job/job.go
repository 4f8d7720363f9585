// Package job holds the runnable jobs known to batchplane and the registry
// that resolves them by name.
package job

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"batchplane/internal/batch"
	"batchplane/internal/params"
)

// Job is a runnable batch job.
//
// Execute never returns an error: failures are recorded on the execution as
// failure exceptions and reflected in its status and exit status.
type Job interface {
	Name() string
	ParameterSchema() params.Schema
	Execute(ctx context.Context, execution *batch.JobExecution)
}

// Registry maps job names to jobs.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// Register adds job. Names are unique.
func (r *Registry) Register(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.Name()]; ok {
		return fmt.Errorf("job %q is already registered", job.Name())
	}
	r.jobs[job.Name()] = job
	return nil
}

// Get returns the job called name, or a *batch.NotFoundError.
func (r *Registry) Get(name string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	if !ok {
		return nil, &batch.NotFoundError{Kind: "job", Identifier: name}
	}
	return job, nil
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
