package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/engine-gc/internal/snapshot"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/filter"
	"github.com/engine-gc/pkg/model"
)

var (
	snapshotTop     int
	snapshotClasses []string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot FILE",
	Short: "Summarize a heap snapshot",
	Long: `Snapshot loads a heap snapshot written by "run --snapshot" and prints
the classes holding the most bytes. Compressed snapshots are detected from
their content.

--class narrows the view to matching classes and their subclasses: Actor,
Hud*, *Widget, *Inv*, or !Item to leave a class out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := snapshot.Load(args[0])
		if err != nil {
			return err
		}
		if len(snapshotClasses) > 0 {
			f, err := filter.NewClassFilter(snapshotClasses...)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeInvalidInput, "class filter", err)
			}
			snap = snap.Filter(f)
		}

		fmt.Fprintf(out, "%s taken %s in state %s\n", paint(ansiBold, args[0]),
			snap.TakenAt.Format("2006-01-02 15:04:05"), snap.State)
		fmt.Fprintf(out, "%d objects, %s, %d edges, %d soft roots, %d transient skipped\n",
			len(snap.Objects), model.FormatBytes(snap.Bytes), snap.Edges, len(snap.SoftRoots), snap.Skipped)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CLASS\tPARENT\tREFS\tCOUNT\tBYTES\tSHARE")
		for i, cl := range snap.Classes {
			if snapshotTop > 0 && i >= snapshotTop {
				break
			}
			share := 0.0
			if snap.Bytes > 0 {
				share = 100 * float64(cl.Bytes) / float64(snap.Bytes)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%.1f%%\n",
				cl.Name, cl.Parent, cl.RefFields, cl.Count, model.FormatBytes(cl.Bytes), share)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().IntVarP(&snapshotTop, "top", "n", 20, "Classes to show, 0 for all")
	snapshotCmd.Flags().StringSliceVar(&snapshotClasses, "class", nil, "Class patterns to include, or exclude with a leading !")
}
