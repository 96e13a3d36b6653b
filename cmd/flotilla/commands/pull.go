package commands

import (
	"github.com/spf13/cobra"

	"github.com/flotilla-io/flotilla/pkg/play"
)

func newPullCommand() *cobra.Command {
	var flags playFlags

	cmd := &cobra.Command{
		Use:   "pull [service|instance...]",
		Short: "Pull images on their ships without touching containers",
		Long: `Refresh the images of the selected instances on the ships that run
them. Pull never mutates container state and is never
order-constrained.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), play.OpPull, args, &flags)
		},
	}

	cmd.Flags().IntVarP(&flags.concurrency, "concurrency-limit", "c", 0,
		"max simultaneous pulls (0 = unbounded)")
	cmd.Flags().BoolVarP(&flags.only, "only", "o", false,
		"act only on the named entities")

	return cmd
}
