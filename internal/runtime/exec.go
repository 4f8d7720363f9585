package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/samber/lo"
)

// stopGracePeriod is how long Stop waits after SIGTERM before killing.
const stopGracePeriod = 5 * time.Second

// ExecRuntime implements Runtime using raw OS processes. Every execution
// gets its own directory under WorkDir unless a working directory is given.
type ExecRuntime struct {
	WorkDir string
	logger  *slog.Logger
}

// NewExecRuntime creates a process-based runtime. An empty workDir defaults
// to <tmp>/batchplane/runner.
func NewExecRuntime(workDir string) *ExecRuntime {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "batchplane", "runner")
	}
	return &ExecRuntime{WorkDir: workDir, logger: slog.Default()}
}

// Start implements Runtime.Start using os/exec. The image is ignored.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("command is required")
	}
	if opts.Image != "" {
		e.logger.Debug("exec runtime ignores image", "image", opts.Image)
	}

	env := withExecutionEnv(opts)

	dir := opts.WorkingDir
	if dir == "" {
		dir = filepath.Join(e.WorkDir, lo.CoalesceOrEmpty(opts.ExecutionID, env[EnvExecutionID], "default"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// An OS pipe lets short-lived commands finish even when nobody reads the
	// output yet.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	writer.Close()

	h := &ExecHandle{cmd: cmd, output: reader, done: make(chan struct{})}
	go h.reap()
	return h, nil
}

// ExecHandle is a running OS process.
type ExecHandle struct {
	cmd    *exec.Cmd
	output *os.File
	done   chan struct{}

	mu     sync.Mutex
	result ExitResult
}

func (h *ExecHandle) reap() {
	err := h.cmd.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.result = ExitResult{ExitCode: h.cmd.ProcessState.ExitCode()}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.result.Error = err
	}
	close(h.done)
}

func (h *ExecHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, nil
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

// Stop sends SIGTERM and kills the process if it is still alive after the
// grace period or when ctx ends.
func (h *ExecHandle) Stop(ctx context.Context) error {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}

	timer := time.NewTimer(stopGracePeriod)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *ExecHandle) StreamLogs(ctx context.Context) (io.ReadCloser, error) {
	return h.output, nil
}
