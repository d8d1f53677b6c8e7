// Package cli implements holdctl, the operator command line for the
// consolidation service.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/holdco/internal/app"
)

// loadConfig is swapped in tests.
var loadConfig = app.LoadConfig

// NewRootCommand builds the holdctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "holdctl",
		Short: "Operate the intercompany consolidation service",
		Long: `holdctl applies database migrations, enqueues and inspects background
jobs and prints withholding schedules.

Configuration is read from the environment and an optional .env file, the
same way the API server and worker read it.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCommand(),
		newJobsCommand(),
		newCloseCommand(),
		newWHTCommand(),
	)
	return root
}

// Execute runs holdctl and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "holdctl: %v\n", err)
		return 1
	}
	return 0
}

func commandLogger(cfg *app.Config, component string) *slog.Logger {
	return app.NewLogger(cfg).With(slog.String("component", component))
}
