package commands

import (
	"github.com/spf13/cobra"

	"github.com/flotilla-io/flotilla/pkg/play"
)

func newRestartCommand() *cobra.Command {
	var flags playFlags

	cmd := &cobra.Command{
		Use:   "restart [service|instance...]",
		Short: "Stop and recreate services, dependencies first",
		Long: `Restart the named services or instances, or every non-omitted
instance when no target is given.

Each instance is stopped, its container removed, and a fresh one
created from the current image. With --reuse, the existing container
is kept and started again instead. With --only-if-changed, instances
already running the current image are skipped.`,
		Example: `  # Roll the whole environment onto freshly pulled images
  flotilla pull && flotilla restart --only-if-changed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), play.OpRestart, args, &flags)
		},
	}

	flags.addCommon(cmd)
	cmd.Flags().BoolVar(&flags.reuse, "reuse", false,
		"restart the existing container instead of recreating it")
	cmd.Flags().BoolVar(&flags.onlyIfChanged, "only-if-changed", false,
		"skip instances already running the current image")

	return cmd
}
