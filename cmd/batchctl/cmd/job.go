package cmd

import (
	"context"
	"log/slog"
	"time"

	"batchplane/internal/config"
	"batchplane/internal/logger"
	"batchplane/internal/notify"
	"batchplane/internal/observability"
	"batchplane/internal/params"
	"batchplane/internal/runner"

	"github.com/spf13/cobra"
)

var (
	jobConfig   string
	jobUsername string
	jobEmail    string
	jobNoLog    bool
	jobVerbose  bool
)

var jobCmd = &cobra.Command{
	Use:   "job <code> [execution_id]",
	Short: "Launch a job definition or resume one of its executions",
	Long: `Launch the job definition <code>. Parameters stored on the definition can be
overridden with --config, a JSON object.

With an execution id, the existing execution is resumed instead. It must be
in STARTING or STOPPING state, and --config and --username are rejected.

Example:
  batchctl job csv_import --config '{"timeout": 120}' --email ops@example.com`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv := runner.Invocation{
			Code:     args[0],
			Config:   jobConfig,
			Username: jobUsername,
			Email:    jobEmail,
			Verbose:  jobVerbose,
		}
		if len(args) == 2 {
			inv.ExecutionID = args[1]
		}
		// An explicitly empty --config still counts as given.
		if cmd.Flags().Changed("config") && inv.Config == "" {
			inv.Config = "{}"
		}
		return runJob(cmd, inv)
	},
}

func runJob(cmd *cobra.Command, inv runner.Invocation) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return &exitError{code: runner.ExitPreconditions, err: err}
	}

	log := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Console: !jobNoLog,
		Writer:  cmd.ErrOrStderr(),
	})

	shutdownTracer, err := observability.InitTracer(ctx, "batchctl", cfg.OTELEndpoint)
	if err != nil {
		return &exitError{code: runner.ExitPreconditions, err: err}
	}
	defer shutdown(log, "tracer", shutdownTracer)

	metrics, err := observability.InitMetrics()
	if err != nil {
		return &exitError{code: runner.ExitPreconditions, err: err}
	}
	defer shutdown(log, "metrics", metrics.Shutdown)

	st, err := newStore(ctx, cfg)
	if err != nil {
		return &exitError{code: runner.ExitPreconditions, err: err}
	}
	defer st.Close()

	notifier, closeNotifier := notify.New(notifyOptions(cfg), log)
	defer closeNotifier()

	registry, err := newRegistry(cfg, st, log)
	if err != nil {
		return &exitError{code: runner.ExitPreconditions, err: err}
	}

	r := runner.New(runner.Config{
		Repository:     st,
		Registry:       registry,
		Validator:      params.NewValidator(),
		Notifier:       notifier,
		Metrics:        metrics,
		PushgatewayURL: cfg.PushgatewayURL,
		LogDir:         cfg.LogDir,
		LogLevel:       logger.ParseLevel(cfg.LogLevel),
		Logger:         log,
	})

	outcome, err := r.Run(ctx, inv)
	if err != nil {
		return &exitError{code: runner.ExitPreconditions, err: err}
	}

	printOutcome(cmd, outcome)
	if code := outcome.ExitCode(); code != runner.ExitSuccess {
		return &exitError{code: code}
	}
	return nil
}

func printOutcome(cmd *cobra.Command, outcome *runner.Outcome) {
	for _, m := range outcome.Messages {
		switch m.Kind {
		case runner.MessageWarning:
			cmd.Println(colorYellow + m.Text + colorReset)
		case runner.MessageError, runner.MessageTrace:
			cmd.Println(colorRed + m.Text + colorReset)
		default:
			cmd.Println(summaryColor(outcome.Classification) + m.Text + colorReset)
		}
	}
}

func summaryColor(c runner.Classification) string {
	switch c {
	case runner.Success:
		return colorGreen
	case runner.SuccessWithWarnings:
		return colorYellow
	}
	return colorRed
}

func notifyOptions(cfg *config.Config) notify.Options {
	return notify.Options{
		Mail: notify.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			TLS:      cfg.SMTPTLS,
		},
		WebhookURL:  cfg.WebhookURL,
		NATSURL:     cfg.NATSURL,
		NATSSubject: cfg.NATSSubject,
	}
}

func shutdown(log *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", "component", name, "error", err)
	}
}

func init() {
	flags := jobCmd.Flags()
	flags.StringVarP(&jobConfig, "config", "c", "", "JSON object overriding the definition parameters (fresh runs only)")
	flags.StringVar(&jobUsername, "username", "", "user launching the job (fresh runs only)")
	flags.StringVar(&jobEmail, "email", "", "address notified when the job ends")
	flags.BoolVar(&jobNoLog, "no-log", false, "do not stream logs to the console")
	flags.BoolVarP(&jobVerbose, "verbose", "v", false, "print every warning and the stack trace of every error")

	rootCmd.AddCommand(jobCmd)
}
