package cmd

import (
	"fmt"
	"strings"

	"github.com/engine-gc/internal/statistics"
	"github.com/engine-gc/pkg/model"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiBold  = "\x1b[1m"
)

func paint(code, s string) string {
	return code + s + ansiReset
}

func statusText(s model.RunStatus) string {
	switch s {
	case model.RunStatusCompleted:
		return paint(ansiGreen, string(s))
	case model.RunStatusFailed:
		return paint(ansiRed, string(s))
	}
	return string(s)
}

func printReport(r *model.RunReport) {
	fmt.Fprintf(out, "%s %s\n", paint(ansiBold, r.RunID), statusText(r.Status))
	fmt.Fprintln(out, r.Summary())
	if n := len(r.Cycles); n > 0 {
		fmt.Fprintf(out, "  longest cycle %s over %d recorded cycles\n", r.MaxPause(), n)
	}
}

func printCycleStats(st *statistics.CycleStatsResult) {
	if st.Cycles == 0 {
		return
	}
	parts := make([]string, 0, len(st.Percentiles))
	for _, p := range st.Percentiles {
		parts = append(parts, fmt.Sprintf("p%g=%s", p.P, p.Duration))
	}
	fmt.Fprintf(out, "  cycle time: mean=%s %s max=%s, reclaimed %s\n",
		st.Mean, strings.Join(parts, " "), st.Max, model.FormatBytes(st.Reclaimed))
	for _, sc := range st.Slowest {
		fmt.Fprintf(out, "    %s cycle %d at tick %d: %s, reclaimed %s\n",
			sc.RunID, sc.Cycle, sc.Tick, sc.Duration, model.FormatBytes(sc.Reclaimed))
	}
}
