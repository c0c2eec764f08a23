package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/engine-gc/internal/sim"
	"github.com/engine-gc/internal/statistics"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
	"github.com/engine-gc/pkg/parallel"
	"github.com/engine-gc/pkg/utils"
	"github.com/engine-gc/pkg/writer"
)

var (
	benchSeeds   int
	benchWorkers int
	benchTimeout time.Duration
	benchOutput  string
	benchUpload  bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the workload over many seeds in parallel",
	Long: `Bench runs one simulation per seed, starting at sim.seed, each against
its own collector. Runs are spread over a worker pool; a summary table and
the slowest cycle of every run are printed at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if benchSeeds <= 0 {
			return apperrors.New(apperrors.CodeInvalidInput, "--seeds must be positive")
		}
		workers := cfg.Sim.Workers
		if cmd.Flags().Changed("workers") {
			workers = benchWorkers
		}

		progress := parallel.NewProgress(benchSeeds, 2*time.Second, func(done, total int) {
			logger.Info("bench: %d/%d runs finished", done, total)
		})
		progress.Start(ctx)

		opts := parallel.DefaultOptions().WithWorkers(workers)
		if benchTimeout > 0 {
			opts = opts.WithTimeout(benchTimeout)
		}
		start := time.Now()
		outcomes := parallel.Run(ctx, benchSeeds, opts, func(ctx context.Context, i int) (*model.RunReport, error) {
			defer progress.Done()
			sc := cfg.Sim
			sc.Seed = cfg.Sim.Seed + int64(i)
			return sim.Run(ctx, sim.Options{
				Name:   "bench",
				GC:     cfg.GC.ToCollectorConfig(),
				Sim:    sc,
				Logger: &utils.NullLogger{},
			})
		})
		progress.Stop()
		elapsed := time.Since(start)
		_, firstErr := parallel.Summarize(outcomes)

		finished := make([]*model.RunReport, 0, len(outcomes))
		for _, o := range outcomes {
			if o.Value != nil {
				finished = append(finished, o.Value)
			}
		}
		printBench(finished, elapsed)

		if benchOutput != "" {
			w, err := writer.ForPath[[]*model.RunReport](benchOutput, true)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeInvalidInput, "bench output", err)
			}
			if err := w.WriteToFile(finished, benchOutput); err != nil {
				return err
			}
			fmt.Fprintf(out, "reports: %s\n", benchOutput)
		}
		if err := saveReports(ctx, finished...); err != nil {
			logger.Error("failed to record runs: %v", err)
		}
		if benchUpload {
			if err := publishReports(ctx, finished); err != nil {
				return err
			}
		}
		return firstErr
	},
}

func printBench(reports []*model.RunReport, elapsed time.Duration) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEED\tSTATUS\tCYCLES\tPEAK OBJECTS\tPEAK BYTES\tLONGEST CYCLE")

	var failed int
	var cycles uint64
	var worst time.Duration
	for _, r := range reports {
		if r.Status != model.RunStatusCompleted {
			failed++
		}
		cycles += r.Totals.Cycles
		if p := r.MaxPause(); p > worst {
			worst = p
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
			r.Seed, statusText(r.Status), r.Totals.Cycles, r.PeakObjects, model.FormatBytes(r.PeakBytes), r.MaxPause())
	}
	tw.Flush()

	fmt.Fprintf(out, "%d runs in %s, %d failed, %d cycles, longest cycle %s\n",
		len(reports), elapsed.Round(time.Millisecond), failed, cycles, worst)
	printCycleStats(statistics.NewCycleStatsCalculator().Calculate(reports))
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().IntVar(&benchSeeds, "seeds", 8, "Number of seeds to run")
	benchCmd.Flags().IntVarP(&benchWorkers, "workers", "w", 4, "Parallel runs (overrides sim.workers)")
	benchCmd.Flags().DurationVar(&benchTimeout, "timeout", 0, "Timeout for the whole bench, 0 for none")
	benchCmd.Flags().BoolVar(&benchUpload, "upload", false, "Upload every report to the configured storage")
	benchCmd.Flags().StringVarP(&benchOutput, "output", "o", "", "Write all reports to one file (.json/.yaml, optional .gz/.zst)")
}
