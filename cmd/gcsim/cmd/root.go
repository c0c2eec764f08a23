package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"github.com/engine-gc/pkg/config"
	"github.com/engine-gc/pkg/pprof"
	"github.com/engine-gc/pkg/telemetry"
	"github.com/engine-gc/pkg/utils"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger utils.Logger
	out    io.Writer = os.Stdout

	shutdownTelemetry telemetry.ShutdownFunc

	// Self-profiling flags
	pprofEnabled  bool
	pprofMode     string
	pprofDir      string
	pprofProfiles string
	pprofCPURate  int
	pprofAddr     string

	pprofCollector *pprof.Collector
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gcsim",
	Short: "Drive and inspect the incremental garbage collector",
	Long: `gcsim exercises the tri-color incremental collector.

It plays seeded game-world simulations against the collector, runs .gcs
scenario scripts with expectations, takes heap snapshots and keeps a history
of runs in a database or object storage.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		if cfg.Log.Color && !noColor {
			out = colorable.NewColorableStdout()
		} else {
			out = colorable.NewNonColorable(os.Stdout)
		}

		level := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			level = utils.LevelDebug
		}
		if cfg.Log.OutputPath != "" {
			fl, err := utils.NewFileLogger(level, cfg.Log.OutputPath)
			if err != nil {
				return err
			}
			logger = fl
		} else {
			logger = utils.NewDefaultLogger(level, os.Stderr)
		}
		utils.SetGlobalLogger(logger)

		shutdown, err := telemetry.Init(cmd.Context())
		if err != nil {
			logger.Warn("tracing disabled: %v", err)
		}
		shutdownTelemetry = shutdown

		if pprofEnabled {
			pcfg, err := buildPprofConfig()
			if err != nil {
				return err
			}
			collector, err := pprof.NewCollector(pcfg, logger)
			if err != nil {
				return err
			}
			if err := collector.Start(); err != nil {
				return err
			}
			pprofCollector = collector
			logger.Info("pprof collection started (mode: %s)", pcfg.Mode)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofCollector != nil {
			if err := pprofCollector.Stop(); err != nil {
				logger.Warn("Failed to stop pprof collector: %v", err)
			}
			for _, f := range pprofCollector.Files() {
				logger.Info("pprof data saved to: %s", f)
			}
			pprofCollector = nil
		}
		if shutdownTelemetry == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("failed to flush traces: %v", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default ./gcsim.yaml or ./configs/gcsim.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Profile gcsim itself while the command runs")
	rootCmd.PersistentFlags().StringVar(&pprofMode, "pprof-mode", "file", "Pprof mode: file (written on exit) or http (on-demand)")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap,allocs", "Comma-separated profile types: cpu,heap,goroutine,block,mutex,allocs")
	rootCmd.PersistentFlags().IntVar(&pprofCPURate, "pprof-cpu-rate", 0, "CPU profiling rate in Hz (0 keeps the runtime default)")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof-addr", "localhost:6060", "HTTP listen address for http mode")

	binName := BinName()
	rootCmd.Example = `  # Simulate 500 ticks and write a compressed report
  ` + binName + ` run --ticks 500 -o out/report.json.zst

  # Run the same workload over 16 seeds in parallel
  ` + binName + ` bench --seeds 16

  # Check scenario scripts
  ` + binName + ` script scripts/*.gcs

  # Show the largest classes of a heap snapshot
  ` + binName + ` snapshot out/heap.json.zst --top 10

  # List recorded runs
  ` + binName + ` runs list --limit 20

  # Profile a long bench
  ` + binName + ` bench --seeds 64 --pprof --pprof-profiles cpu,heap`
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

// buildPprofConfig builds pprof configuration from command line flags.
func buildPprofConfig() (*pprof.Config, error) {
	profiles, err := pprof.ParseProfileTypes(pprofProfiles)
	if err != nil {
		return nil, err
	}
	return &pprof.Config{
		Mode:      pprof.ModeType(pprofMode),
		Profiles:  profiles,
		OutputDir: pprofDir,
		CPURate:   pprofCPURate,
		Addr:      pprofAddr,
	}, nil
}
