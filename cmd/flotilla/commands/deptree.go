package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flotilla-io/flotilla/pkg/config"
	"github.com/flotilla-io/flotilla/pkg/graph"
)

func newDeptreeCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "deptree",
		Short: "Show the environment's dependency graph",
		Long: `Print the start order of the environment as waves: every instance
in a wave may start concurrently once the previous wave is up. With
--dot, emit Graphviz DOT instead (hard dependencies solid, soft ones
dashed).`,
		Example: `  flotilla deptree
  flotilla deptree --dot | dot -Tsvg -o deptree.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(envFile)
			if err != nil {
				return err
			}
			model, err := f.Resolve()
			if err != nil {
				return err
			}
			g, err := graph.Build(model)
			if err != nil {
				return err
			}

			if dot {
				fmt.Print(g.ToDOT())
				return nil
			}

			for i, wave := range g.Levels() {
				fmt.Printf("wave %d: %s\n", i+1, strings.Join(wave, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "emit Graphviz DOT")
	return cmd
}
