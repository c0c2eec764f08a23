package gc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engine-gc/pkg/utils"
)

type node struct {
	Next  Handle
	Other Tracked[node]
	Kids  []Handle
	Tag   int
}

type leaf struct {
	V int
}

type resource struct {
	Owner Handle
	hook  func(c *Collector, self Handle)
	calls int
}

func (r *resource) OnDestroy(c *Collector, self Handle) {
	r.calls++
	if r.hook != nil {
		r.hook(c, self)
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	_, err := Register[node](reg, "node", nil)
	require.NoError(t, err)
	_, err = Register[leaf](reg, "leaf", nil)
	require.NoError(t, err)
	_, err = Register[resource](reg, "resource", nil)
	require.NoError(t, err)
	return reg
}

func newTestCollector(t *testing.T, cfg Config) *Collector {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = utils.NewMockClock(time.Unix(0, 0))
	}
	return New(testRegistry(t), cfg)
}

func debugConfig() Config {
	cfg := DefaultConfig()
	cfg.Debug = true
	return cfg
}

// cycleBySteps drives one complete cycle through StepN calls of n units and
// returns how many calls it took.
func cycleBySteps(t *testing.T, c *Collector, n int) int {
	t.Helper()
	calls := 1
	c.StepN(n)
	require.NotEqual(t, StatePause, c.State())
	for c.State() != StatePause {
		c.StepN(n)
		calls++
		require.Less(t, calls, 100000, "cycle did not finish")
	}
	return calls
}

// stepUntil single-steps until the collector reaches state.
func stepUntil(t *testing.T, c *Collector, state State) {
	t.Helper()
	for k := 0; c.State() != state; k++ {
		require.Less(t, k, 100000, "never reached %s", state)
		c.StepN(1)
	}
}

// reachable walks the graph from the roots. It returns the live objects that
// the mutator may still legally reach and every stale handle found in their
// fields.
func reachable(c *Collector) (live []Handle, stale []Handle) {
	seen := map[Handle]bool{}
	var stack []Handle
	visit := func(h Handle) {
		if h == Nil || seen[h] {
			return
		}
		seen[h] = true
		if !c.Valid(h) {
			stale = append(stale, h)
			return
		}
		stack = append(stack, h)
	}
	c.visitRoots(visit)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		f, _ := c.Flags(h)
		if f&FlagEuthanizeMe != 0 || c.IsCondemned(h) {
			continue
		}
		live = append(live, h)
		for _, r := range c.References(h) {
			visit(r)
		}
	}
	return live, stale
}
