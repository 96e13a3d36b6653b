package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flotilla-io/flotilla/pkg/play"
)

// playFlags are the knobs shared by the fleet operations.
type playFlags struct {
	withDependencies bool
	ignoreOrder      bool
	only             bool
	concurrency      int
	reuse            bool
	onlyIfChanged    bool
}

func (f *playFlags) addCommon(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.withDependencies, "with-dependencies", "d", false,
		"expand the selection to its dependency closure")
	cmd.Flags().BoolVarP(&f.ignoreOrder, "ignore-dependencies", "i", false,
		"dispatch everything in parallel, ignoring dependency order")
	cmd.Flags().BoolVarP(&f.only, "only", "o", false,
		"act only on the named entities, never expanding the closure")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency-limit", "c", 0,
		"max simultaneous operations (0 = unbounded)")
}

func (f *playFlags) policy(targets []string) play.Policy {
	return play.Policy{
		Targets:          targets,
		WithDependencies: f.withDependencies && !f.only,
		IgnoreOrder:      f.ignoreOrder,
		Concurrency:      f.concurrency,
		Reuse:            f.reuse,
		OnlyIfChanged:    f.onlyIfChanged,
	}
}

// runPlay executes one fleet operation end to end and renders the
// per-instance outcome table. The returned error is non-nil when any
// instance failed, which drives the process exit code.
func runPlay(ctx context.Context, op play.Op, targets []string, flags *playFlags) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := play.New(a.model, play.Options{
		Provider: a.provider,
		Sink:     a.sink,
		Logger:   a.tel.Logger.Zerolog(),
		Metrics:  a.tel.Metrics,
		Tracer:   a.tel.Tracer,
	})
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, op, flags.policy(targets))
	if err != nil {
		return err
	}

	printResult(result)

	if result.Failed() {
		return fmt.Errorf("%d of %d instances failed", result.Summary.Failed, result.Summary.Total)
	}
	return nil
}

func printResult(result *play.Result) {
	names := make([]string, 0, len(result.Instances))
	for name := range result.Instances {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tSERVICE\tSHIP\tOUTCOME\tDETAIL")
	for _, name := range names {
		ir := result.Instances[name]
		detail := ir.Detail
		if ir.Err != nil {
			detail = ir.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ir.Instance, ir.Service, ir.Ship, ir.Outcome, detail)
	}
	w.Flush()

	fmt.Printf("\n%s %s: %d ok, %d failed, %d skipped (%s)\n",
		result.Op, result.Environment,
		result.Summary.Succeeded, result.Summary.Failed, result.Summary.Skipped,
		result.Duration.Round(time.Millisecond))
}
