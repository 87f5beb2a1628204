package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"arch-setup/internal/state"
	"arch-setup/internal/steps"
)

var reportCmd = &cobra.Command{
	Use:   "report [journal]",
	Short: "Print the journal of a post-install run",
	Long: `Prints the journal written by the post-install pass. Without an argument the
journal of the running system (/` + state.JournalPath + `) is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join("/", state.JournalPath)
		if len(args) == 1 {
			path = args[0]
		}
		j := state.LoadJournal(path)
		if j.RunID == "" {
			return fmt.Errorf("no journal found at %s", path)
		}
		printJournal(cmd.OutOrStdout(), j)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

// printJournal renders a journal as a short table, one line per step.
func printJournal(w io.Writer, j *state.Journal) {
	if j == nil {
		return
	}
	fmt.Fprintf(w, "Run %s on %s: %s\n", j.RunID, orUnknown(j.Hostname), statusColor(j.Status).Sprint(j.Status))
	fmt.Fprintf(w, "Started %s", j.StartedAt.Format(time.RFC3339))
	if !j.FinishedAt.IsZero() {
		fmt.Fprintf(w, ", took %s", j.FinishedAt.Sub(j.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	for i, s := range j.Steps {
		fmt.Fprintf(w, "  %2d. %-28s %-8s %8s", i+1, s.Name, statusColor(string(s.Status)).Sprint(s.Status), s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			fmt.Fprintf(w, "  %s", s.Error)
		}
		fmt.Fprintln(w)
	}
	if j.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", j.Error)
	}
}

func statusColor(status string) *color.Color {
	switch status {
	case string(steps.StatusOK), state.StatusCompleted:
		return color.New(color.FgGreen)
	case state.StatusFailed:
		return color.New(color.FgRed)
	case string(steps.StatusSkipped):
		return color.New(color.FgYellow)
	}
	return color.New(color.Reset)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown host"
	}
	return s
}
