package gc

import "time"

// Stats is a point-in-time view of the collector.
type Stats struct {
	State         State
	Objects       int
	Gray          int
	FinalizeQueue int
	SoftRoots     int
	Fixed         int

	AllocBytes uint64
	Estimate   uint64
	Threshold  uint64
	Debt       uint64

	Cycles          uint64
	FullCollections uint64
	Allocated       uint64
	AllocatedBytes  uint64
	Marked          uint64
	Swept           uint64
	Condemned       uint64
	Finalized       uint64
	Freed           uint64
	FreedBytes      uint64
	Released        uint64
	Destroyed       uint64
	BarrierHits     uint64
	ReadClears      uint64
}

// CycleStats records one finished collection cycle.
type CycleStats struct {
	Cycle         uint64
	StartBytes    uint64
	EndBytes      uint64
	Threshold     uint64
	NextThreshold uint64
	Marked        uint64
	Condemned     uint64
	Finalized     uint64
	Freed         uint64
	Duration      time.Duration
}

// Observer is notified of phase changes and finished cycles. Callbacks run
// synchronously inside the step and must not drive the collector.
type Observer interface {
	OnStateChange(from, to State)
	OnCycleDone(cs CycleStats)
}

// Observers fans out to several observers in order.
type Observers []Observer

// OnStateChange implements Observer.
func (o Observers) OnStateChange(from, to State) {
	for _, ob := range o {
		ob.OnStateChange(from, to)
	}
}

// OnCycleDone implements Observer.
func (o Observers) OnCycleDone(cs CycleStats) {
	for _, ob := range o {
		ob.OnCycleDone(cs)
	}
}

// Stats returns counters and current sizes.
func (c *Collector) Stats() Stats {
	st := c.stats
	st.State = c.state
	st.Objects = c.arena.live
	st.Gray = c.gray.n
	st.FinalizeQueue = c.finalize.n
	st.SoftRoots = len(c.softRoots)
	st.Fixed = len(c.fixed)
	st.AllocBytes = c.allocBytes
	st.Estimate = c.estimate
	st.Threshold = c.threshold
	st.Debt = c.debt
	return st
}

// RecentCycles returns the most recent finished cycles, oldest first.
func (c *Collector) RecentCycles() []CycleStats {
	return c.history.Items()
}

// SetObserver replaces the observer.
func (c *Collector) SetObserver(o Observer) {
	c.observer = o
}
