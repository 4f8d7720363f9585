package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/logger"
	"batchplane/internal/runtime"
	"batchplane/internal/store"
)

const (
	logBatchSize     = 100         // Max lines per batch
	logFlushInterval = time.Second // Flush at least every second

	// WarningPrefix marks output lines that are reported as step warnings.
	WarningPrefix = "WARNING:"
)

// ExitCodeError is returned by CommandStep when the command exits non-zero.
type ExitCodeError struct {
	Command  []string
	ExitCode int
	Err      error
}

func (e *ExitCodeError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", strings.Join(e.Command, " "), e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// Code lets failure exceptions carry the exit code.
func (e *ExitCodeError) Code() int { return e.ExitCode }

// CommandStep runs an external command through a runtime. Its output is
// shipped to the log store; every line counts as a read item and lines
// starting with WarningPrefix become step warnings.
type CommandStep struct {
	name    string
	runtime runtime.Runtime
	opts    runtime.StartOptions
	logs    store.LogStore
	logger  *slog.Logger
}

func NewCommandStep(name string, rt runtime.Runtime, opts runtime.StartOptions, logs store.LogStore, logger *slog.Logger) *CommandStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandStep{name: name, runtime: rt, opts: opts, logs: logs, logger: logger}
}

func (s *CommandStep) Name() string { return s.name }

func (s *CommandStep) Execute(ctx context.Context, step *batch.StepExecution) error {
	opts := s.opts
	opts.ExecutionID = step.JobExecutionID.String()

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log := logger.FromContext(ctx, s.logger).With("step", s.name)

	handle, err := s.runtime.Start(runCtx, opts)
	if err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.streamLogs(runCtx, step, handle, log)
	}()

	result, err := handle.Wait(runCtx)
	if err != nil {
		// The command may still be alive; make sure it does not outlive the step.
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer stopCancel()
		if stopErr := handle.Stop(stopCtx); stopErr != nil {
			log.Warn("failed to stop command", "error", stopErr)
		}
		wg.Wait()

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("command timed out after %v", opts.Timeout)
		}
		return fmt.Errorf("failed waiting for command: %w", err)
	}
	wg.Wait()

	step.AddSummaryInfo("exit_code", result.ExitCode)
	if result.ExitCode != 0 {
		return &ExitCodeError{Command: opts.Command, ExitCode: result.ExitCode, Err: result.Error}
	}
	return nil
}

// streamLogs reads the command output until it ends, batching lines into the
// log store. It is the only writer of step while the command runs.
func (s *CommandStep) streamLogs(ctx context.Context, step *batch.StepExecution, handle runtime.Handle, log *slog.Logger) {
	rc, err := handle.StreamLogs(ctx)
	if err != nil {
		log.Warn("failed to get log stream", "error", err)
		return
	}
	defer rc.Close()

	// Shipping must survive a cancelled run so the tail of the output is kept.
	shipCtx := context.WithoutCancel(ctx)

	var lines []string
	flushTicker := time.NewTicker(logFlushInterval)
	defer flushTicker.Stop()

	lineChan := make(chan string, logBatchSize)

	go func() {
		defer close(lineChan)
		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			// Postgres rejects \x00 in text columns.
			line := strings.ReplaceAll(scanner.Text(), "\x00", "")
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	flush := func() {
		if len(lines) == 0 || s.logs == nil {
			lines = lines[:0]
			return
		}
		if err := s.logs.AddLogEntry(shipCtx, step.JobExecutionID, strings.Join(lines, "\n")); err != nil {
			log.Warn("failed to ship logs", "error", err)
		}
		lines = lines[:0]
	}

	for {
		select {
		case line, ok := <-lineChan:
			if !ok {
				flush()
				return
			}
			s.consume(step, line, log)
			lines = append(lines, line)
			if len(lines) >= logBatchSize {
				flush()
			}
		case <-flushTicker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (s *CommandStep) consume(step *batch.StepExecution, line string, log *slog.Logger) {
	step.IncrementRead()
	log.Debug(line)

	rest, ok := strings.CutPrefix(line, WarningPrefix)
	if !ok {
		return
	}
	step.AddWarning(batch.Warning{
		Reason: strings.TrimSpace(rest),
		Item:   map[string]any{"line": step.ReadCount},
	})
}
