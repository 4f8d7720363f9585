package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"batchplane/internal/config"
	"batchplane/internal/job"
	"batchplane/internal/runtime"
	"batchplane/internal/store"
	"batchplane/internal/store/postgres"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "batchctl",
	Short: "batchctl runs and inspects batch job executions",
	Long: `batchctl runs one batch job per invocation and records its execution.

A job definition names a registered job and stores its parameters. Running
a definition creates a job execution that moves through STARTING, RUNNING
and finally COMPLETED, FAILED or STOPPED.

Common workflows:

  Create a job definition:
    batchctl create -f nightly_export.yaml

  Run it, overriding a parameter:
    batchctl job nightly_export --config '{"timeout": 600}'

  Resume an execution left in STARTING or STOPPING:
    batchctl job nightly_export 3f1c...

  Inspect, stop, and read the output of an execution:
    batchctl status <execution_id>
    batchctl stop <execution_id>
    batchctl logs <execution_id> --follow

Exit codes of "batchctl job": 0 success, 1 error, 2 success with warnings,
3 when the job could not be started.

Configuration is read from ./batchplane.yaml (or --config-file) and the
environment; DATABASE_URL is required.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// newStore opens the configured backend. Tests replace it.
var newStore = func(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return postgres.New(ctx, cfg.DatabaseURL)
}

// Execute runs the root command and prints the error, if any.
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *exitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.err == nil) {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

// exitError carries a process exit code out of a command. A nil err means
// the command already reported everything it had to say.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// openStore loads the configuration and opens the store.
func openStore(ctx context.Context) (*config.Config, store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return cfg, st, nil
}

// newRegistry registers the jobs batchctl knows how to run.
func newRegistry(cfg *config.Config, st store.Store, logger *slog.Logger) (*job.Registry, error) {
	runtimes := runtime.NewFactory(runtime.FactoryConfig{
		WorkDir: cfg.RuntimeWorkDir,
		Kubernetes: runtime.KubernetesConfig{
			Namespace:          cfg.KubernetesNamespace,
			ServiceAccount:     cfg.KubernetesServiceAccount,
			DefaultCPULimit:    cfg.KubernetesCPULimit,
			DefaultMemoryLimit: cfg.KubernetesMemoryLimit,
		},
	}, logger)

	registry := job.NewRegistry()
	err := registry.Register(job.NewCommandJob(job.CommandJobConfig{
		Runtimes:         runtimes,
		Repository:       st,
		Logs:             st,
		StopPollInterval: cfg.StopPollInterval,
		Logger:           logger,
	}))
	if err != nil {
		return nil, err
	}
	return registry, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file (default is ./batchplane.yaml)")
}
