package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"batchplane/internal/store"

	"github.com/google/uuid"
)

// DefaultStopPollInterval is how often a running job looks for a stop request.
const DefaultStopPollInterval = 2 * time.Second

// StopWatcher polls the repository while a job runs and latches once the
// persisted status of the execution turns STOPPING. It never writes.
type StopWatcher struct {
	repo        store.JobRepository
	executionID uuid.UUID
	interval    time.Duration
	logger      *slog.Logger

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewStopWatcher(repo store.JobRepository, executionID uuid.UUID, interval time.Duration, logger *slog.Logger) *StopWatcher {
	if interval <= 0 {
		interval = DefaultStopPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StopWatcher{repo: repo, executionID: executionID, interval: interval, logger: logger}
}

// Start begins polling in the background until Close is called or ctx ends.
func (w *StopWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

func (w *StopWatcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Poll(ctx) {
				return
			}
		}
	}
}

// Poll checks the repository once and reports whether a stop was requested.
func (w *StopWatcher) Poll(ctx context.Context) bool {
	if w.stopped.Load() {
		return true
	}
	if w.repo == nil {
		return false
	}
	execution, err := w.repo.FindExecution(ctx, w.executionID)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("stop poll failed", "error", err)
		}
		return false
	}
	if execution.Status.IsStopping() {
		w.logger.Info("stop requested")
		w.stopped.Store(true)
		return true
	}
	return false
}

// Stopped reports whether a stop request has been seen.
func (w *StopWatcher) Stopped() bool {
	return w.stopped.Load()
}

// Close stops polling and waits for the poller to exit.
func (w *StopWatcher) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
