// Package model defines the run and cycle records shared by the simulator,
// the repository and the report writers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/inhies/go-bytesize"
)

// RunStatus represents the status of a simulation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Totals holds the cumulative collector counters at the end of a run.
type Totals struct {
	Cycles          uint64 `json:"cycles" yaml:"cycles"`
	FullCollections uint64 `json:"full_collections" yaml:"full_collections"`
	Allocated       uint64 `json:"allocated" yaml:"allocated"`
	AllocatedBytes  uint64 `json:"allocated_bytes" yaml:"allocated_bytes"`
	Marked          uint64 `json:"marked" yaml:"marked"`
	Swept           uint64 `json:"swept" yaml:"swept"`
	Condemned       uint64 `json:"condemned" yaml:"condemned"`
	Finalized       uint64 `json:"finalized" yaml:"finalized"`
	Freed           uint64 `json:"freed" yaml:"freed"`
	FreedBytes      uint64 `json:"freed_bytes" yaml:"freed_bytes"`
	Released        uint64 `json:"released" yaml:"released"`
	Destroyed       uint64 `json:"destroyed" yaml:"destroyed"`
	BarrierHits     uint64 `json:"barrier_hits" yaml:"barrier_hits"`
	ReadClears      uint64 `json:"read_clears" yaml:"read_clears"`
}

// CycleRecord is one finished collection cycle as seen by a run.
type CycleRecord struct {
	Tick          int    `json:"tick" yaml:"tick"`
	Cycle         uint64 `json:"cycle" yaml:"cycle"`
	StartBytes    uint64 `json:"start_bytes" yaml:"start_bytes"`
	EndBytes      uint64 `json:"end_bytes" yaml:"end_bytes"`
	Threshold     uint64 `json:"threshold" yaml:"threshold"`
	NextThreshold uint64 `json:"next_threshold" yaml:"next_threshold"`
	Marked        uint64 `json:"marked" yaml:"marked"`
	Condemned     uint64 `json:"condemned" yaml:"condemned"`
	Finalized     uint64 `json:"finalized" yaml:"finalized"`
	Freed         uint64 `json:"freed" yaml:"freed"`
	DurationUS    int64  `json:"duration_us" yaml:"duration_us"`
}

// Reclaimed returns the bytes the cycle gave back.
func (r CycleRecord) Reclaimed() uint64 {
	if r.EndBytes >= r.StartBytes {
		return 0
	}
	return r.StartBytes - r.EndBytes
}

// RunReport is the outcome of one simulation or script run.
type RunReport struct {
	RunID          string        `json:"run_id" yaml:"run_id"`
	Name           string        `json:"name" yaml:"name"`
	Seed           int64         `json:"seed" yaml:"seed"`
	Status         RunStatus     `json:"status" yaml:"status"`
	StartedAt      time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Ticks          int           `json:"ticks" yaml:"ticks"`
	PeakObjects    int           `json:"peak_objects" yaml:"peak_objects"`
	PeakBytes      uint64        `json:"peak_bytes" yaml:"peak_bytes"`
	FinalObjects   int           `json:"final_objects" yaml:"final_objects"`
	FinalBytes     uint64        `json:"final_bytes" yaml:"final_bytes"`
	Totals         Totals        `json:"totals" yaml:"totals"`
	Cycles         []CycleRecord `json:"cycles" yaml:"cycles"`
	VerifyRuns     int           `json:"verify_runs" yaml:"verify_runs"`
	VerifyFailures int           `json:"verify_failures" yaml:"verify_failures"`
	Error          string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewRunReport creates a report in the running state.
func NewRunReport(runID, name string, seed int64, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		Name:      name,
		Seed:      seed,
		Status:    RunStatusRunning,
		StartedAt: startedAt,
		Cycles:    make([]CycleRecord, 0),
	}
}

// Observe folds the current heap size into the peaks.
func (r *RunReport) Observe(objects int, bytes uint64) {
	if objects > r.PeakObjects {
		r.PeakObjects = objects
	}
	if bytes > r.PeakBytes {
		r.PeakBytes = bytes
	}
}

// Complete marks the run as finished successfully.
func (r *RunReport) Complete(at time.Time) {
	r.Status = RunStatusCompleted
	r.FinishedAt = at
}

// Fail marks the run as failed with err.
func (r *RunReport) Fail(at time.Time, err error) {
	r.Status = RunStatusFailed
	r.FinishedAt = at
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the run took, or zero while it is running.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// MaxPause returns the longest cycle duration recorded.
func (r *RunReport) MaxPause() time.Duration {
	var max int64
	for _, c := range r.Cycles {
		if c.DurationUS > max {
			max = c.DurationUS
		}
	}
	return time.Duration(max) * time.Microsecond
}

// Summary renders a short human readable description of the run.
func (r *RunReport) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s (%s) seed=%d status=%s\n", r.RunID, r.Name, r.Seed, r.Status)
	fmt.Fprintf(&sb, "  ticks=%d cycles=%d full=%d\n", r.Ticks, r.Totals.Cycles, r.Totals.FullCollections)
	fmt.Fprintf(&sb, "  peak: %d objects, %s\n", r.PeakObjects, FormatBytes(r.PeakBytes))
	fmt.Fprintf(&sb, "  final: %d objects, %s\n", r.FinalObjects, FormatBytes(r.FinalBytes))
	fmt.Fprintf(&sb, "  allocated %s, freed %s\n", FormatBytes(r.Totals.AllocatedBytes), FormatBytes(r.Totals.FreedBytes))
	fmt.Fprintf(&sb, "  barrier hits=%d read clears=%d\n", r.Totals.BarrierHits, r.Totals.ReadClears)
	fmt.Fprintf(&sb, "  verify: %d runs, %d failures", r.VerifyRuns, r.VerifyFailures)
	if r.Error != "" {
		fmt.Fprintf(&sb, "\n  error: %s", r.Error)
	}
	return sb.String()
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n uint64) string {
	return bytesize.New(float64(n)).String()
}
