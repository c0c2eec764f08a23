// Package statistics summarizes collection cycles across runs.
package statistics

import (
	"math"
	"sort"
	"time"

	"github.com/engine-gc/pkg/model"
)

// CycleStatsCalculator computes pause statistics from run reports.
type CycleStatsCalculator struct {
	topN        int
	percentiles []float64
}

// CycleStatsOption configures the CycleStatsCalculator.
type CycleStatsOption func(*CycleStatsCalculator)

// WithTopN sets how many of the slowest cycles to keep.
func WithTopN(n int) CycleStatsOption {
	return func(c *CycleStatsCalculator) {
		c.topN = n
	}
}

// WithPercentiles replaces the default percentiles (50, 95, 99).
func WithPercentiles(ps ...float64) CycleStatsOption {
	return func(c *CycleStatsCalculator) {
		c.percentiles = ps
	}
}

// NewCycleStatsCalculator creates a new CycleStatsCalculator.
func NewCycleStatsCalculator(opts ...CycleStatsOption) *CycleStatsCalculator {
	c := &CycleStatsCalculator{
		topN:        5,
		percentiles: []float64{50, 95, 99},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Percentile is one nearest-rank percentile of cycle durations.
type Percentile struct {
	P        float64       `json:"p"`
	Duration time.Duration `json:"duration_ns"`
}

// SlowCycle identifies one cycle of one run.
type SlowCycle struct {
	RunID     string        `json:"run_id"`
	Tick      int           `json:"tick"`
	Cycle     uint64        `json:"cycle"`
	Duration  time.Duration `json:"duration_ns"`
	Reclaimed uint64        `json:"reclaimed"`
}

// CycleStatsResult holds the calculation result.
type CycleStatsResult struct {
	Runs        int           `json:"runs"`
	Cycles      int           `json:"cycles"`
	Total       time.Duration `json:"total_ns"`
	Mean        time.Duration `json:"mean_ns"`
	Max         time.Duration `json:"max_ns"`
	Percentiles []Percentile  `json:"percentiles"`
	Reclaimed   uint64        `json:"reclaimed"`
	Slowest     []SlowCycle   `json:"slowest"`
}

// Calculate folds the cycles of every report. Nil reports are skipped.
func (c *CycleStatsCalculator) Calculate(reports []*model.RunReport) *CycleStatsResult {
	result := &CycleStatsResult{
		Percentiles: make([]Percentile, 0, len(c.percentiles)),
		Slowest:     make([]SlowCycle, 0),
	}

	var all []SlowCycle
	for _, r := range reports {
		if r == nil {
			continue
		}
		result.Runs++
		for _, cr := range r.Cycles {
			all = append(all, SlowCycle{
				RunID:     r.RunID,
				Tick:      cr.Tick,
				Cycle:     cr.Cycle,
				Duration:  time.Duration(cr.DurationUS) * time.Microsecond,
				Reclaimed: cr.Reclaimed(),
			})
		}
	}
	if len(all) == 0 {
		return result
	}

	// Slowest first; ties keep run order.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Duration > all[j].Duration
	})

	result.Cycles = len(all)
	for _, sc := range all {
		result.Total += sc.Duration
		result.Reclaimed += sc.Reclaimed
	}
	result.Mean = result.Total / time.Duration(len(all))
	result.Max = all[0].Duration

	for _, p := range c.percentiles {
		result.Percentiles = append(result.Percentiles, Percentile{P: p, Duration: nearestRank(all, p)})
	}

	topN := c.topN
	if topN > len(all) {
		topN = len(all)
	}
	result.Slowest = append(result.Slowest, all[:topN]...)
	return result
}

// nearestRank expects desc sorted by duration, slowest first.
func nearestRank(desc []SlowCycle, p float64) time.Duration {
	n := len(desc)
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return desc[n-rank].Duration
}

// Percentile returns the computed value for p.
func (r *CycleStatsResult) Percentile(p float64) (time.Duration, bool) {
	for _, pc := range r.Percentiles {
		if pc.P == p {
			return pc.Duration, true
		}
	}
	return 0, false
}
