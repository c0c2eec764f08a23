package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/engine-gc/pkg/errors"
)

func TestFullGC_EdgeKeepsReferentAlive(t *testing.T) {
	c := newTestCollector(t, debugConfig())

	a, an := Create[node](c)
	b, _ := Create[node](c)
	require.NoError(t, c.AddSoftRoot(a))
	c.Store(a, &an.Next, b)

	c.FullGC()
	assert.True(t, c.Valid(a))
	assert.True(t, c.Valid(b), "b is reachable through a")

	an.Next = Nil
	c.FullGC()
	assert.True(t, c.Valid(a))
	assert.False(t, c.Valid(b), "b lost its only edge")
	assert.Nil(t, Get[node](c, b))

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Freed)
	assert.Equal(t, uint64(2), st.FullCollections)
	assert.Equal(t, 0, st.FinalizeQueue)
}

func TestSoftRoot_SurvivesUntilRemoved(t *testing.T) {
	c := newTestCollector(t, debugConfig())

	h, _ := Create[leaf](c)
	require.NoError(t, c.AddSoftRoot(h))
	f, _ := c.Flags(h)
	assert.True(t, f.Has(FlagRooted))

	cycleBySteps(t, c, 1)
	assert.True(t, c.Valid(h))

	assert.True(t, c.DelSoftRoot(h))
	assert.False(t, c.DelSoftRoot(h))
	cycleBySteps(t, c, 1)
	assert.False(t, c.Valid(h))
}

func TestSoftRoot_CountedEntries(t *testing.T) {
	c := newTestCollector(t, debugConfig())

	h, _ := Create[leaf](c)
	require.NoError(t, c.AddSoftRoot(h))
	require.NoError(t, c.AddSoftRoot(h))
	assert.Len(t, c.SoftRoots(), 2)

	assert.True(t, c.DelSoftRoot(h))
	c.FullGC()
	assert.True(t, c.Valid(h), "one entry still pins it")
	f, _ := c.Flags(h)
	assert.True(t, f.Has(FlagRooted))

	assert.True(t, c.DelSoftRoot(h))
	f, _ = c.Flags(h)
	assert.False(t, f.Has(FlagRooted))
	c.FullGC()
	assert.False(t, c.Valid(h))
}

func TestSoftRoot_RejectsStaleAndDying(t *testing.T) {
	c := newTestCollector(t, DefaultConfig())

	h, _ := Create[leaf](c)
	require.NoError(t, c.Destroy(h))
	err := c.AddSoftRoot(h)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))

	c.FullGC()
	assert.True(t, apperrors.IsInvalidHandle(c.AddSoftRoot(h)))
}

func TestPacing_LeavesPauseAtThreshold(t *testing.T) {
	cfg := debugConfig()
	cfg.Pause = 150
	cfg.StepMul = 600
	c := newTestCollector(t, cfg)

	assert.Equal(t, cfg.MinEstimate*150/100, c.Threshold())

	for k := 0; ; k++ {
		require.Less(t, k, 100000)
		Create[leaf](c)
		below := c.AllocBytes() < c.Threshold()
		c.CheckGC()
		if below {
			require.Equal(t, StatePause, c.State(), "stepped below the threshold at %d bytes", c.AllocBytes())
			continue
		}
		assert.NotEqual(t, StatePause, c.State())
		break
	}

	// Every paced step is preceded by more allocation; the cycle completes and
	// reclaims the unrooted leaves.
	for k := 0; c.Stats().Cycles == 0; k++ {
		require.Less(t, k, 100000)
		Create[leaf](c)
		c.CheckGC()
	}
	assert.Greater(t, c.Stats().Freed, uint64(0))
}

func TestPacing_ThresholdAfterCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEstimate = 0
	c := newTestCollector(t, cfg)

	var keep []Handle
	for i := 0; i < 100; i++ {
		h, _ := Create[leaf](c)
		require.NoError(t, c.AddSoftRoot(h))
		keep = append(keep, h)
	}
	for i := 0; i < 100; i++ {
		Create[leaf](c)
	}
	c.FullGC()

	live := c.AllocBytes()
	assert.Equal(t, uint64(len(keep))*c.Stats().AllocatedBytes/200, live)
	assert.Equal(t, live*150/100, c.Threshold())

	c.StartCollection()
	assert.Equal(t, c.AllocBytes(), c.Threshold())
	c.CheckGC()
	assert.NotEqual(t, StatePause, c.State())
}

func TestConfig_ZeroValueGetsDefaults(t *testing.T) {
	c := New(testRegistry(t), Config{})
	got := c.Config()
	def := DefaultConfig()
	assert.Equal(t, def.StepMul, got.StepMul)
	assert.Equal(t, def.Pause, got.Pause)
	assert.Equal(t, def.StepSize, got.StepSize)
	assert.Equal(t, def.StepBytes, got.StepBytes)

	c = New(testRegistry(t), Config{StepMul: -40})
	assert.Equal(t, StepMulUnlimited, c.Config().StepMul)

	c.SetStepMul(0)
	assert.Equal(t, StepMulUnlimited, c.Config().StepMul)
	c.SetStepMul(300)
	assert.Equal(t, 300, c.Config().StepMul)
}

func TestStep_ZeroValueConfigIsBounded(t *testing.T) {
	c := New(testRegistry(t), Config{})
	root, rn := Create[node](c)
	require.NoError(t, c.AddSoftRoot(root))
	for i := 0; i < 5000; i++ {
		h, _ := Create[leaf](c)
		rn.Kids = append(rn.Kids, h)
	}
	c.StartCollection()
	c.CheckGC()
	require.Equal(t, StatePropagate, c.State())

	before := c.Stats().Marked
	c.Step()
	def := DefaultConfig()
	assert.Equal(t, StatePropagate, c.State())
	assert.LessOrEqual(t, c.Stats().Marked-before, uint64(def.StepSize*def.StepMul/100))
	assert.Positive(t, c.Stats().Marked-before)
}

func TestStep_UnlimitedStepMul(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepMul = StepMulUnlimited
	c := newTestCollector(t, cfg)
	for i := 0; i < 10; i++ {
		Create[leaf](c)
	}
	c.StartCollection()
	c.CheckGC() // transition to propagate only
	require.Equal(t, StatePropagate, c.State())
	c.Step()
	assert.Equal(t, StateSweep, c.State(), "a zero-cost transition ends the step")
}

func TestStepN_NeverMixesPhases(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	root, rn := Create[node](c)
	require.NoError(t, c.AddSoftRoot(root))
	for i := 0; i < 50; i++ {
		h, _ := Create[leaf](c)
		rn.Kids = append(rn.Kids, h)
	}
	for i := 0; i < 50; i++ {
		Create[leaf](c)
	}

	assert.Equal(t, 0, c.StepN(1000))
	assert.Equal(t, StatePropagate, c.State())

	assert.Equal(t, 51, c.StepN(1000), "marks root and kids")
	assert.Equal(t, StateSweep, c.State(), "the atomic step ends the call")

	assert.Equal(t, 101, c.StepN(1000))
	assert.Equal(t, StateFinalize, c.State())
	for c.State() == StateFinalize {
		c.StepN(1)
	}
	assert.Equal(t, StatePause, c.State())
	assert.Equal(t, 51, c.Objects())
}

func TestFinalize_BoundedPerStep(t *testing.T) {
	cfg := debugConfig()
	cfg.FinalizeMax = 3
	cfg.FinalizeCost = 2
	c := newTestCollector(t, cfg)
	for i := 0; i < 10; i++ {
		Create[leaf](c)
	}
	stepUntil(t, c, StateFinalize)
	assert.Equal(t, 10, c.Stats().FinalizeQueue)

	assert.Equal(t, 6, c.StepN(1))
	assert.Equal(t, 7, c.Stats().FinalizeQueue)
	assert.Equal(t, 6, c.StepN(1))
	assert.Equal(t, 6, c.StepN(1))
	assert.Equal(t, 2, c.StepN(1))
	assert.Equal(t, 0, c.Stats().FinalizeQueue)
	c.StepN(1)
	assert.Equal(t, StatePause, c.State())
}

func TestFullGC_Idempotent(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	root, _ := Create[node](c)
	require.NoError(t, c.Fix(root))
	prev := root
	for i := 0; i < 20; i++ {
		h, n := Create[node](c)
		if i%2 == 0 {
			c.Store(prev, &Get[node](c, prev).Next, h)
			prev = h
		}
		n.Tag = i
	}

	c.FullGC()
	first := c.Stats()
	assert.Equal(t, uint64(10), first.Freed)

	c.FullGC()
	second := c.Stats()
	assert.Equal(t, first.Freed, second.Freed)
	assert.Equal(t, first.Condemned, second.Condemned)
	assert.Equal(t, first.Finalized, second.Finalized)
	assert.Equal(t, 11, second.Objects)
	assert.Equal(t, 0, second.Gray)
}

func TestFullGC_FinishesCycleInFlight(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	Create[leaf](c)
	c.StepN(1)
	require.Equal(t, StatePropagate, c.State())

	c.FullGC()
	assert.Equal(t, StatePause, c.State())
	assert.Equal(t, uint64(2), c.Stats().Cycles)
	assert.Equal(t, 0, c.Objects())
}

func TestFixed_NeverSwept(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	h, n := Create[node](c)
	kid, _ := Create[leaf](c)
	require.NoError(t, c.Fix(h))
	require.NoError(t, c.Fix(h))
	n.Next = kid

	c.FullGC()
	c.FullGC()
	assert.True(t, c.Valid(h))
	assert.True(t, c.Valid(kid), "fixed objects are roots")
	assert.Equal(t, 1, c.Stats().Fixed)

	c.Unfix(h)
	c.FullGC()
	assert.False(t, c.Valid(h))
	assert.False(t, c.Valid(kid))
}

func TestRootMarker(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	var player Handle
	id := c.AddRootMarker(func(m *Marker) {
		m.MarkField(&player)
	})

	player, _ = Create[leaf](c)
	c.FullGC()
	assert.True(t, c.Valid(player))

	// Stores into engine state during a cycle are covered by the remark.
	other, _ := Create[leaf](c)
	c.StepN(1)
	c.StepN(1)
	require.Equal(t, StatePropagate, c.State())
	old := player
	player = other
	for c.State() != StatePause {
		c.StepN(100)
	}
	assert.True(t, c.Valid(other))
	assert.True(t, c.Valid(old), "marked before the store")
	c.FullGC()
	assert.False(t, c.Valid(old))
	assert.True(t, c.Valid(other))

	assert.True(t, c.RemoveRootMarker(id))
	assert.False(t, c.RemoveRootMarker(id))
	h := player
	c.FullGC()
	assert.False(t, c.Valid(h))
}

func TestRootMarker_ClearsDyingField(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	var target Handle
	c.AddRootMarker(func(m *Marker) { m.MarkField(&target) })

	target, _ = Create[leaf](c)
	require.NoError(t, c.Destroy(target))
	c.FullGC()
	assert.Equal(t, Nil, target)
}

func TestCreate_Unregistered(t *testing.T) {
	c := newTestCollector(t, DefaultConfig())
	type stranger struct{ X int }
	assert.Panics(t, func() { Create[stranger](c) })
}

func TestCreate_OutOfMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjects = 2
	c := newTestCollector(t, cfg)
	Create[leaf](c)
	h, _ := Create[leaf](c)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeOutOfMemory, apperrors.GetErrorCode(err))
	}()
	require.NoError(t, c.Release(h))
	Create[leaf](c) // reuses the freed slot
	Create[leaf](c)
}

func TestHandle_GenerationGoesStale(t *testing.T) {
	c := newTestCollector(t, DefaultConfig())
	h, _ := Create[leaf](c)
	require.NoError(t, c.Release(h))

	h2, _ := Create[leaf](c)
	assert.Equal(t, h.index(), h2.index(), "slot is recycled")
	assert.NotEqual(t, h, h2)
	assert.False(t, c.Valid(h))
	assert.True(t, c.Valid(h2))
	assert.Nil(t, Get[node](c, h2), "class mismatch")
	assert.Equal(t, "nil", Nil.String())
}

func TestFlags_MutatorOnly(t *testing.T) {
	c := newTestCollector(t, DefaultConfig())
	h, _ := Create[leaf](c)

	f, ok := c.Flags(h)
	require.True(t, ok)
	assert.True(t, f.Has(FlagJustSpawned))

	require.NoError(t, c.ClearFlags(h, FlagJustSpawned))
	require.NoError(t, c.SetFlags(h, FlagTransient))
	f, _ = c.Flags(h)
	assert.Equal(t, FlagTransient, f)
	assert.Equal(t, "transient", f.String())

	err := c.SetFlags(h, FlagFixed)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
}

type recordingObserver struct {
	transitions []string
	cycles      []CycleStats
}

func (o *recordingObserver) OnStateChange(from, to State) {
	o.transitions = append(o.transitions, from.String()+">"+to.String())
}

func (o *recordingObserver) OnCycleDone(cs CycleStats) {
	o.cycles = append(o.cycles, cs)
}

func TestObserverAndHistory(t *testing.T) {
	obs := &recordingObserver{}
	cfg := debugConfig()
	cfg.HistorySize = 2
	cfg.Observer = Observers{obs}
	c := newTestCollector(t, cfg)

	for i := 0; i < 5; i++ {
		Create[leaf](c)
	}
	c.FullGC()
	assert.Equal(t, []string{
		"pause>propagate", "propagate>sweep", "sweep>finalize", "finalize>pause",
	}, obs.transitions)
	require.Len(t, obs.cycles, 1)
	assert.Equal(t, uint64(5), obs.cycles[0].Finalized)
	assert.Equal(t, uint64(1), obs.cycles[0].Cycle)

	c.FullGC()
	c.FullGC()
	recent := c.RecentCycles()
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].Cycle)
	assert.Equal(t, uint64(3), recent[1].Cycle)
}

func TestColorOf(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	root, rn := Create[node](c)
	kid, _ := Create[leaf](c)
	require.NoError(t, c.AddSoftRoot(root))
	rn.Next = kid

	color, _ := c.ColorOf(kid)
	assert.Equal(t, ColorWhite, color)

	c.StepN(1)
	color, _ = c.ColorOf(root)
	assert.Equal(t, ColorGray, color)
	color, _ = c.ColorOf(kid)
	assert.Equal(t, ColorWhite, color)

	born, _ := Create[leaf](c)
	color, _ = c.ColorOf(born)
	assert.Equal(t, ColorBlack, color, "newborn objects count as marked")

	c.StepN(1)
	color, _ = c.ColorOf(root)
	assert.Equal(t, ColorBlack, color)
	color, _ = c.ColorOf(kid)
	assert.Equal(t, ColorGray, color)

	_, ok := c.ColorOf(Nil)
	assert.False(t, ok)
}

func TestForEachObjectAndReferences(t *testing.T) {
	c := newTestCollector(t, DefaultConfig())
	a, an := Create[node](c)
	b, _ := Create[leaf](c)
	d, _ := Create[leaf](c)
	an.Next = b
	an.Kids = []Handle{d, Nil}

	var seen []Handle
	c.ForEachObject(func(h Handle, cls *ClassDescriptor) bool {
		seen = append(seen, h)
		return true
	})
	assert.Equal(t, []Handle{d, b, a}, seen, "newest first")
	assert.Equal(t, []Handle{b, d}, c.References(a))
	assert.Empty(t, c.References(b))

	count := 0
	c.ForEachObject(func(Handle, *ClassDescriptor) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}
