package testutil

import (
	"time"

	"github.com/engine-gc/pkg/model"
)

// Epoch is the start time of every report built by Report, shifted by its
// offset.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Report builds a completed run with the given number of cycles. Cycle i
// finishes at tick 10*i, takes 15*i microseconds and reclaims 44 KiB.
func Report(runID, name string, offset time.Duration, cycles int) *model.RunReport {
	r := model.NewRunReport(runID, name, 42, Epoch.Add(offset))
	r.Ticks = 500
	r.Observe(1200, 96*1024)
	r.FinalObjects = 300
	r.FinalBytes = 24 * 1024
	r.Totals = model.Totals{
		Cycles:          uint64(cycles),
		FullCollections: 1,
		Allocated:       9000,
		Freed:           8700,
		BarrierHits:     55,
	}
	for i := 1; i <= cycles; i++ {
		r.Cycles = append(r.Cycles, model.CycleRecord{
			Tick:       i * 10,
			Cycle:      uint64(i),
			StartBytes: 64 * 1024,
			EndBytes:   20 * 1024,
			Marked:     uint64(100 + i),
			Freed:      uint64(40 + i),
			DurationUS: int64(i * 15),
		})
	}
	r.VerifyRuns = 5
	r.Complete(Epoch.Add(offset + 3*time.Second))
	return r
}
