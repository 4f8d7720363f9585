package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const logsPageSize = 100

var (
	follow           bool
	logsPollInterval = time.Second
)

var logsCmd = &cobra.Command{
	Use:   "logs <execution_id>",
	Short: "Print the output of an execution",
	Long: `Print the output lines captured from the commands of an execution.
With --follow, keep polling until the execution ends or Ctrl+C is pressed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid execution id %q", args[0])
		}

		// Trap Ctrl+C to exit gracefully
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		_, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var lastID int64
		ended := false
		for {
			entries, err := st.GetExecutionLogs(ctx, id, lastID, logsPageSize)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to fetch logs: %w", err)
			}

			for _, entry := range entries {
				cmd.Print(entry.Content)
				if !strings.HasSuffix(entry.Content, "\n") {
					cmd.Println()
				}
				if entry.ID > lastID {
					lastID = entry.ID
				}
			}

			if len(entries) == logsPageSize {
				continue
			}
			if !follow {
				return nil
			}

			// Caught up. Once the execution has ended, drain one more time
			// to pick up lines shipped right before the end.
			execution, err := st.FindExecution(ctx, id)
			if err == nil && execution.Status.IsTerminal() {
				if ended {
					return nil
				}
				ended = true
				continue
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(logsPollInterval):
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
}
