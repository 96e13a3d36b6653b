package commands

import (
	"github.com/spf13/cobra"

	"github.com/flotilla-io/flotilla/pkg/play"
)

func newStopCommand() *cobra.Command {
	var flags playFlags

	cmd := &cobra.Command{
		Use:   "stop [service|instance...]",
		Short: "Stop services across the fleet, dependents first",
		Long: `Stop the named services or instances, or every non-omitted
instance when no target is given.

Stop order is the reverse of start order: dependents go down before
the services they require. Each container gets its configured grace
period before the daemon escalates to a kill. Stopped containers and
their volumes are removed unless --reuse keeps them around for a
later start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), play.OpStop, args, &flags)
		},
	}

	flags.addCommon(cmd)
	cmd.Flags().BoolVar(&flags.reuse, "reuse", false,
		"keep the stopped container instead of removing it")

	return cmd
}
