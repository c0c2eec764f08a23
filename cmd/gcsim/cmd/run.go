package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/engine-gc/internal/gc"
	"github.com/engine-gc/internal/sim"
	"github.com/engine-gc/internal/snapshot"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
	"github.com/engine-gc/pkg/telemetry"
	"github.com/engine-gc/pkg/utils"
	"github.com/engine-gc/pkg/writer"
)

var (
	runName     string
	runSeed     int64
	runTicks    int
	runActors   int
	runReport   string
	runSnapshot string
	runUpload   bool
	runTimings  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one seeded simulation",
	Long: `Run plays the game-world workload against a fresh collector, verifies
the heap on the configured schedule and writes a run report.

The report format follows the file name: .json, .yaml or .yml, optionally
compressed with a trailing .gz or .zst. Relative paths are placed in the
run's directory under sim.output_dir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()
		if flags.Changed("seed") {
			cfg.Sim.Seed = runSeed
		}
		if flags.Changed("ticks") {
			cfg.Sim.Ticks = runTicks
		}
		if flags.Changed("actors") {
			cfg.Sim.Actors = runActors
		}

		timer := utils.NewTimer("gcsim run", utils.WithLogger(logger), utils.WithEnabled(runTimings))

		if err := os.MkdirAll(cfg.Sim.OutputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		lock := flock.New(filepath.Join(cfg.Sim.OutputDir, ".gcsim.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to lock output directory: %w", err)
		}
		if !locked {
			return apperrors.Newf(apperrors.CodeInvalidInput, "output directory %s is in use by another run", cfg.Sim.OutputDir)
		}
		defer lock.Unlock()

		logger.Debug("collector: %s", cfg.GC)
		opts := sim.Options{
			Name:   runName,
			GC:     cfg.GC.ToCollectorConfig(),
			Sim:    cfg.Sim,
			Logger: logger,
		}
		if telemetry.Enabled() {
			opts.Observer = telemetry.NewCycleObserver(ctx, nil, runName)
		}
		var snap *snapshot.Snapshot
		if runSnapshot != "" {
			opts.OnFinish = func(c *gc.Collector) {
				snap = snapshot.Take(c, snapshot.Options{})
			}
		}

		phase := timer.Start("simulate")
		report, runErr := sim.Run(ctx, opts)
		phase.Stop()

		runDir := filepath.Join(cfg.Sim.OutputDir, report.RunID)
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return fmt.Errorf("failed to create run directory: %w", err)
		}
		artifacts := []string{}

		reportPath := inDir(runDir, runReport)
		if _, err := timer.TimeFuncWithError("write report", func() error {
			return writeReport(report, reportPath)
		}); err != nil {
			return err
		}
		artifacts = append(artifacts, reportPath)

		if snap != nil {
			snapPath := inDir(runDir, runSnapshot)
			if _, err := timer.TimeFuncWithError("write snapshot", func() error {
				return snap.Save(snapPath)
			}); err != nil {
				return err
			}
			logger.Info("snapshot: %d objects, %s", len(snap.Objects), model.FormatBytes(snap.Bytes))
			artifacts = append(artifacts, snapPath)
		}

		if _, err := timer.TimeFuncWithError("save run", func() error {
			return saveReports(ctx, report)
		}); err != nil {
			logger.Error("failed to record run: %v", err)
		}

		if runUpload {
			var urls []string
			_, err := timer.TimeFuncWithError("upload", func() error {
				var err error
				urls, err = publishFiles(ctx, report.RunID, artifacts...)
				return err
			})
			for _, u := range urls {
				fmt.Fprintf(out, "uploaded %s\n", u)
			}
			if err != nil {
				return err
			}
		}

		printReport(report)
		fmt.Fprintf(out, "report: %s\n", reportPath)
		timer.PrintSummary()
		return runErr
	},
}

// inDir resolves name against dir unless it is absolute.
func inDir(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func writeReport(report *model.RunReport, path string) error {
	w, err := writer.ForPath[*model.RunReport](path, true)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "report path", err)
	}
	return w.WriteToFile(report, path)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runName, "name", "n", "sim", "Run name, used as the run id prefix")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "Workload seed (overrides sim.seed)")
	runCmd.Flags().IntVar(&runTicks, "ticks", 2000, "Ticks to simulate (overrides sim.ticks)")
	runCmd.Flags().IntVar(&runActors, "actors", 200, "Initial actors (overrides sim.actors)")
	runCmd.Flags().StringVarP(&runReport, "output", "o", "report.json", "Report file")
	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "Write a heap snapshot taken after the final collection")
	runCmd.Flags().BoolVar(&runUpload, "upload", false, "Upload the report and snapshot to the configured storage")
	runCmd.Flags().BoolVar(&runTimings, "timings", false, "Print a phase timing summary")
}
