package cmd

import (
	"errors"
	"fmt"

	"batchplane/internal/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <execution_id>",
	Short: "Ask a running execution to stop",
	Long: `Mark a STARTING or RUNNING execution as STOPPING. The running job notices
the request between two steps and ends with status STOPPED; the step in
progress is never interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid execution id %q", args[0])
		}

		_, st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RequestStop(cmd.Context(), id); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("execution %s not found", id)
			case errors.Is(err, store.ErrNotStoppable):
				return fmt.Errorf("execution %s cannot be stopped: %w", id, err)
			}
			return err
		}

		cmd.Printf("✓ Stop requested for execution %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
