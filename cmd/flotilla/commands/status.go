package commands

import (
	"github.com/spf13/cobra"

	"github.com/flotilla-io/flotilla/pkg/play"
)

func newStatusCommand() *cobra.Command {
	var flags playFlags

	cmd := &cobra.Command{
		Use:   "status [service|instance...]",
		Short: "Report the live state of every instance",
		Long: `Query each ship's daemon for the state of the selected instances.
Status never mutates anything and always runs fully parallel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), play.OpStatus, args, &flags)
		},
	}

	cmd.Flags().IntVarP(&flags.concurrency, "concurrency-limit", "c", 0,
		"max simultaneous queries (0 = unbounded)")
	cmd.Flags().BoolVarP(&flags.only, "only", "o", false,
		"act only on the named entities")

	return cmd
}
