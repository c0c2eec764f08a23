package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/engine-gc/internal/script"
	apperrors "github.com/engine-gc/pkg/errors"
)

var (
	scriptNoDebug   bool
	scriptKeepGoing bool
)

var scriptCmd = &cobra.Command{
	Use:   "script FILE...",
	Short: "Run .gcs scenario scripts",
	Long: `Script runs each file against a fresh collector and checks its expect
lines. Use - to read a script from standard input.

Collector contract checks are on unless --no-debug is given, so misuse such
as a double release fails the script at the offending line.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, path := range args {
			res, err := runScript(path)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s %s: %v\n", paint(ansiRed, "FAIL"), path, err)
				if !scriptKeepGoing {
					break
				}
				continue
			}
			fmt.Fprintf(out, "%s %s: %d commands, %d expectations, %d cycles\n",
				paint(ansiGreen, "ok"), path, res.Commands, res.Expectations, res.Stats.Cycles)
		}
		if failed > 0 {
			return apperrors.Newf(apperrors.CodeScriptError, "%d of %d scripts failed", failed, len(args))
		}
		return nil
	},
}

func runScript(path string) (*script.Result, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	gcfg := cfg.GC.ToCollectorConfig()
	gcfg.Debug = !scriptNoDebug
	gcfg.Logger = logger.WithField("script", path)
	in, err := script.New(gcfg)
	if err != nil {
		return nil, err
	}
	return in.Run(r)
}

func init() {
	rootCmd.AddCommand(scriptCmd)

	scriptCmd.Flags().BoolVar(&scriptNoDebug, "no-debug", false, "Disable collector contract checks")
	scriptCmd.Flags().BoolVarP(&scriptKeepGoing, "keep-going", "k", false, "Run the remaining scripts after a failure")
}
