package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile      string
	logLevel     string
	logFormat    string
	metricsAddr  string
	shipProvider string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flotilla",
		Short: "Flotilla - multi-host Docker fleet orchestrator",
		Long: `Flotilla orchestrates fleets of Docker containers across multiple
hosts from a single declarative environment description.

Services declare what they require of each other; flotilla computes
the dependency order, starts and stops instances in waves across the
fleet, gates starts on readiness checks, and reports a per-instance
outcome for every operation.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&envFile, "file", "f", "flotilla.yaml", "environment description file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&shipProvider, "ship-provider", "static", "ship inventory provider")

	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newRestartCommand())
	rootCmd.AddCommand(newPullCommand())
	rootCmd.AddCommand(newDeptreeCommand())

	return rootCmd
}
