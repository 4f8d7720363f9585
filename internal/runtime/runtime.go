// Package runtime provides the backends that run the external commands of a
// batch step: local processes, Docker containers and Kubernetes Jobs.
package runtime

import (
	"context"
	"io"
	"time"
)

// EnvExecutionID is set in the environment of every started command.
const EnvExecutionID = "BATCHPLANE_EXECUTION_ID"

// Runtime starts commands.
type Runtime interface {
	// Start begins execution of a command and returns a handle.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting a command.
type StartOptions struct {
	// ExecutionID scopes working directories and resource names.
	ExecutionID string
	Image       string
	Command     []string
	Env         map[string]string
	WorkingDir  string
	Timeout     time.Duration
}

// ExitResult is the outcome of a finished command.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a running command.
type Handle interface {
	// Wait blocks until the command completes. A cancelled context returns
	// exit code -1 together with the context error.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop terminates the command.
	Stop(ctx context.Context) error

	// StreamLogs returns the combined stdout/stderr of the command. The
	// caller must drain and close it.
	StreamLogs(ctx context.Context) (io.ReadCloser, error)
}

func withExecutionEnv(opts StartOptions) map[string]string {
	env := make(map[string]string, len(opts.Env)+1)
	for k, v := range opts.Env {
		env[k] = v
	}
	if opts.ExecutionID != "" {
		env[EnvExecutionID] = opts.ExecutionID
	}
	return env
}
