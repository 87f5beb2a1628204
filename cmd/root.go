package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"arch-setup/internal/logger"
)

// debug flag indicates whether debug logging should be enabled.
// It can be toggled via the `--debug` command-line flag.
var debug bool

// noColor disables colored output, e.g. when the log is captured to a file.
var noColor bool

// rootCmd is the base command for the CLI tool `arch-setup`.
var rootCmd = &cobra.Command{
	Use:          "arch-setup",
	Short:        "Arch Linux installation and post-install automation",
	SilenceUsage: true,

	// PersistentPreRun is a hook that runs before any subcommand.
	// Here, we initialize the logger based on the global flags.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(debug, noColor)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// Execute runs the command line. SIGINT and SIGTERM cancel the context, which
// stops the installation before the next external command. Any error exits 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
