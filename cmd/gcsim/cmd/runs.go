package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/engine-gc/internal/repository"
	"github.com/engine-gc/internal/statistics"
	"github.com/engine-gc/internal/storage"
	"github.com/engine-gc/pkg/model"
)

var (
	runsName   string
	runsStatus string
	runsLimit  int
	runsOutput string
	runsPurge  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse recorded runs",
	Long:  `Runs queries the run history kept in the configured database.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := openRepositories()
		if err != nil {
			return err
		}
		defer repos.Close()

		runs, err := repos.Runs.ListRuns(cmd.Context(), repository.RunFilter{
			Name:   runsName,
			Status: model.RunStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTATUS\tSEED\tTICKS\tCYCLES\tPEAK BYTES\tSTARTED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", r.RunID, statusText(r.Status), r.Seed, r.Ticks,
				r.Totals.Cycles, model.FormatBytes(r.PeakBytes), r.StartedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show one run, optionally exporting it with its cycles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := openRepositories()
		if err != nil {
			return err
		}
		defer repos.Close()

		report, err := repos.Runs.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printReport(report)
		printCycleStats(statistics.NewCycleStatsCalculator(statistics.WithTopN(3)).Calculate([]*model.RunReport{report}))
		if runsOutput != "" {
			if err := writeReport(report, runsOutput); err != nil {
				return err
			}
			fmt.Fprintf(out, "report: %s\n", runsOutput)
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete RUN_ID...",
	Short: "Delete runs and their cycles",
	Long: `Delete removes runs from the database. With --purge the artifacts
uploaded for each run are removed from the configured storage as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := openRepositories()
		if err != nil {
			return err
		}
		defer repos.Close()

		var archive *storage.Archive
		if runsPurge {
			if archive, err = openArchive(); err != nil {
				return err
			}
		}
		for _, id := range args {
			if err := repos.Runs.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted %s\n", id)
			if archive != nil {
				n, err := archive.Purge(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "purged %d artifacts of %s\n", n, id)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)

	runsListCmd.Flags().StringVar(&runsName, "name", "", "Only runs with this name")
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "Only runs in this status (running, completed, failed)")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "l", 50, "Maximum runs to list, 0 for all")
	runsDeleteCmd.Flags().BoolVar(&runsPurge, "purge", false, "Also delete the run's uploaded artifacts")
	runsShowCmd.Flags().StringVarP(&runsOutput, "output", "o", "", "Also write the full report to this file")
}
