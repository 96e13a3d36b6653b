package commands

import (
	"github.com/spf13/cobra"

	"github.com/flotilla-io/flotilla/pkg/play"
)

func newStartCommand() *cobra.Command {
	var flags playFlags

	cmd := &cobra.Command{
		Use:   "start [service|instance...]",
		Short: "Start services across the fleet, dependencies first",
		Long: `Start the named services or instances, or every non-omitted
instance when no target is given.

Dependencies start first; an instance is only dispatched once
everything it requires is up and has passed its readiness checks. A
failed dependency skips its dependents without aborting unrelated
branches.`,
		Example: `  # Start the whole environment
  flotilla start

  # Start web and everything it requires
  flotilla start -d web

  # Start exactly web-1, two operations at a time
  flotilla start -o -c 2 web-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), play.OpStart, args, &flags)
		},
	}

	flags.addCommon(cmd)
	cmd.Flags().BoolVar(&flags.reuse, "reuse", false,
		"start an existing stopped container instead of recreating it")

	return cmd
}
