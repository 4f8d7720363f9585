package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"batchplane/internal/store"
	"batchplane/pkg/api"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status <execution_id>",
	Short: "Get status of an execution",
	Long:  `Retrieve detailed status information for a job execution: its state (STARTING, RUNNING, STOPPING, COMPLETED, FAILED, STOPPED), exit status, process id, timestamps and the outcome of every step.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid execution id %q", args[0])
		}
		if statusOutput != "text" && statusOutput != "json" {
			return fmt.Errorf("invalid output format %q: must be text or json", statusOutput)
		}

		_, st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		execution, err := st.FindExecution(cmd.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("execution %s not found", id)
			}
			return err
		}

		resp := api.NewExecutionResponse(execution)
		if statusOutput == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printStatus(cmd, resp)
		return nil
	},
}

func printStatus(cmd *cobra.Command, execution api.ExecutionResponse) {
	icon := statusIcon(execution.Status)
	cmd.Printf("%s %sExecution Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, execution.ID)
	cmd.Printf("%sJob:%s         %s (%s)\n", colorDim, colorReset, execution.Code, execution.Job)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(execution.Status))

	exit := execution.ExitCode
	if execution.ExitDescription != "" {
		exit += ": " + execution.ExitDescription
	}
	cmd.Printf("%sExit Status:%s %s\n", colorDim, colorReset, exit)

	if execution.PID != 0 {
		cmd.Printf("%sPID:%s         %d\n", colorDim, colorReset, execution.PID)
	}
	if execution.User != "" {
		cmd.Printf("%sUser:%s        %s\n", colorDim, colorReset, execution.User)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(execution.StartedAt))
	if execution.StartedAt != nil && execution.EndedAt != nil {
		duration := execution.EndedAt.Sub(*execution.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(execution.EndedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(execution.EndedAt))
	}

	for _, f := range execution.Failures {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, f, colorReset)
	}

	if len(execution.Steps) == 0 {
		return
	}
	cmd.Println()
	cmd.Printf("%sSteps%s\n", colorBold, colorReset)
	for _, s := range execution.Steps {
		cmd.Printf("  %s %-20s read %d, write %d, warnings %d\n",
			statusIcon(s.Status), s.Name, s.Read, s.Write, len(s.Warnings))
		for _, w := range s.Warnings {
			cmd.Printf("      %s%s%s\n", colorYellow, w, colorReset)
		}
		for _, f := range s.Failures {
			cmd.Printf("      %s%s%s\n", colorRed, f, colorReset)
		}
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "COMPLETED":
		return colorGreen + "✓" + colorReset
	case "FAILED", "ABANDONED":
		return colorRed + "✗" + colorReset
	case "RUNNING":
		return colorYellow + "⏳" + colorReset
	case "STOPPING", "STOPPED":
		return colorYellow + "■" + colorReset
	case "STARTING":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "COMPLETED":
		return icon + " " + colorGreen + status + colorReset
	case "FAILED", "ABANDONED":
		return icon + " " + colorRed + status + colorReset
	case "RUNNING", "STOPPING", "STOPPED":
		return icon + " " + colorYellow + status + colorReset
	case "STARTING":
		return icon + " " + colorCyan + status + colorReset
	default:
		return strings.TrimSpace(icon + " " + status)
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format: text or json")
	rootCmd.AddCommand(statusCmd)
}
