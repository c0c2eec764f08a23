package sim

import (
	"context"
	"fmt"

	"github.com/engine-gc/internal/gc"
	"github.com/engine-gc/pkg/config"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/model"
	"github.com/engine-gc/pkg/utils"
)

// Options configures one simulation run.
type Options struct {
	Name string
	GC   gc.Config
	Sim  config.SimConfig
	// Observer, when set, also receives collector events.
	Observer gc.Observer
	Logger   utils.Logger
	Clock    utils.Clock
	// OnFinish runs after the final full collection, before the heap is
	// torn down.
	OnFinish func(c *gc.Collector)
}

// cycleRecorder turns finished cycles into report records tagged with the
// tick they finished in.
type cycleRecorder struct {
	report *model.RunReport
	world  **World
}

func (r *cycleRecorder) OnStateChange(from, to gc.State) {}

func (r *cycleRecorder) OnCycleDone(cs gc.CycleStats) {
	tick := 0
	if *r.world != nil {
		tick = (*r.world).Ticks()
	}
	r.report.Cycles = append(r.report.Cycles, model.CycleRecord{
		Tick:          tick,
		Cycle:         cs.Cycle,
		StartBytes:    cs.StartBytes,
		EndBytes:      cs.EndBytes,
		Threshold:     cs.Threshold,
		NextThreshold: cs.NextThreshold,
		Marked:        cs.Marked,
		Condemned:     cs.Condemned,
		Finalized:     cs.Finalized,
		Freed:         cs.Freed,
		DurationUS:    cs.Duration.Microseconds(),
	})
}

// Run builds a fresh collector and world and plays cfg.Ticks ticks. The
// report is returned even when the run fails.
func Run(ctx context.Context, opts Options) (report *model.RunReport, err error) {
	log := opts.Logger
	if log == nil {
		log = &utils.NullLogger{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = utils.NewRealClock()
	}
	name := opts.Name
	if name == "" {
		name = "sim"
	}

	start := clock.Now()
	report = model.NewRunReport(fmt.Sprintf("%s-%d-%x", name, opts.Sim.Seed, start.UnixNano()), name, opts.Sim.Seed, start)
	log = log.WithField("run", report.RunID)

	defer func() {
		if r := recover(); r != nil {
			perr := apperrors.FromPanic(r)
			log.Error("simulation aborted at tick %d: %v", report.Ticks, perr)
			report.Fail(clock.Now(), perr)
			err = perr
		}
	}()

	reg := gc.NewRegistry()
	cls, err := Register(reg)
	if err != nil {
		report.Fail(clock.Now(), err)
		return report, err
	}

	var world *World
	observers := gc.Observers{&cycleRecorder{report: report, world: &world}}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}
	gcfg := opts.GC
	gcfg.Observer = observers
	if gcfg.Logger == nil {
		gcfg.Logger = log
	}
	if gcfg.Clock == nil {
		gcfg.Clock = clock
	}
	c := gc.New(reg, gcfg)

	world, err = NewWorld(c, cls, opts.Sim, log)
	if err != nil {
		report.Fail(clock.Now(), err)
		return report, err
	}
	defer world.Close()

	log.Info("starting %d ticks with %d actors, seed %d", opts.Sim.Ticks, opts.Sim.Actors, opts.Sim.Seed)
	for t := 1; t <= opts.Sim.Ticks; t++ {
		if err := ctx.Err(); err != nil {
			report.Fail(clock.Now(), err)
			return report, err
		}
		if err := world.Tick(); err != nil {
			report.Fail(clock.Now(), err)
			return report, err
		}
		report.Ticks = t

		if opts.Sim.FullGCEvery > 0 && t%opts.Sim.FullGCEvery == 0 {
			c.FullGC()
		}
		if opts.Sim.VerifyEvery > 0 && t%opts.Sim.VerifyEvery == 0 {
			verify(c, report, log, t)
		}
		report.Observe(c.Objects(), c.AllocBytes())
	}

	c.FullGC()
	verify(c, report, log, report.Ticks)
	st := c.Stats()
	report.FinalObjects = st.Objects
	report.FinalBytes = st.AllocBytes
	report.Totals = totalsOf(st)
	if opts.OnFinish != nil {
		opts.OnFinish(c)
	}

	freed := c.FreeAll()
	log.Debug("freed %d objects at shutdown", freed)

	if report.VerifyFailures > 0 {
		err = apperrors.Newf(apperrors.CodeInvariant, "%d of %d heap verifications failed", report.VerifyFailures, report.VerifyRuns)
		report.Fail(clock.Now(), err)
		return report, err
	}
	report.Complete(clock.Now())
	log.Info("finished: %d cycles, %d objects live", report.Totals.Cycles, report.FinalObjects)
	return report, nil
}

func verify(c *gc.Collector, report *model.RunReport, log utils.Logger, tick int) {
	report.VerifyRuns++
	vr, err := c.Verify()
	if err != nil {
		report.VerifyFailures++
		log.Error("tick %d: %v", tick, err)
		return
	}
	log.Debug("tick %d: verified %d objects, %d reachable", tick, vr.Objects, vr.Reachable)
}

func totalsOf(st gc.Stats) model.Totals {
	return model.Totals{
		Cycles:          st.Cycles,
		FullCollections: st.FullCollections,
		Allocated:       st.Allocated,
		AllocatedBytes:  st.AllocatedBytes,
		Marked:          st.Marked,
		Swept:           st.Swept,
		Condemned:       st.Condemned,
		Finalized:       st.Finalized,
		Freed:           st.Freed,
		FreedBytes:      st.FreedBytes,
		Released:        st.Released,
		Destroyed:       st.Destroyed,
		BarrierHits:     st.BarrierHits,
		ReadClears:      st.ReadClears,
	}
}
