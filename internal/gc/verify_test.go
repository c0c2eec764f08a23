package gc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_CleanHeap(t *testing.T) {
	c := newTestCollector(t, debugConfig())
	a, an := Create[node](c)
	b, _ := Create[leaf](c)
	Create[leaf](c)
	require.NoError(t, c.AddSoftRoot(a))
	an.Next = b

	r, err := c.Verify()
	require.NoError(t, err)
	assert.Equal(t, 3, r.Objects)
	assert.Equal(t, 2, r.Reachable)
	assert.Equal(t, 1, r.Unreachable)
	assert.Empty(t, r.Problems)
}

func TestVerify_DetectsListCorruption(t *testing.T) {
	c := newTestCollector(t, DefaultConfig())
	h, _ := Create[leaf](c)
	Create[leaf](c)
	c.arena.at(h.index()).where = inFinalize

	r, err := c.Verify()
	require.Error(t, err)
	assert.NotEmpty(t, r.Problems)
}

// TestRandomMutator runs a seeded mutator that only touches objects it can
// reach, the way engine code does, and checks the heap after every action.
func TestRandomMutator(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		seed := seed
		t.Run("", func(t *testing.T) {
			cfg := debugConfig()
			cfg.SweepMax = 7
			cfg.FinalizeMax = 3
			c := newTestCollector(t, cfg)
			rng := rand.New(rand.NewSource(seed))
			gone := map[Handle]bool{}

			first, _ := Create[node](c)
			require.NoError(t, c.AddSoftRoot(first))

			pick := func(hs []Handle) Handle { return hs[rng.Intn(len(hs))] }

			for step := 0; step < 3000; step++ {
				live, stale := reachable(c)
				for _, h := range stale {
					require.True(t, gone[h], "step %d: %s freed while reachable", step, h)
				}
				if len(live) == 0 {
					h, _ := Create[node](c)
					require.NoError(t, c.AddSoftRoot(h))
					continue
				}

				switch op := rng.Intn(12); op {
				case 0, 1, 2:
					h, _ := Create[node](c)
					holder := pick(live)
					hn := Get[node](c, holder)
					if rng.Intn(2) == 0 {
						hn.Kids = append(hn.Kids, h)
						c.WriteBarrier(holder, h)
					} else {
						c.Store(holder, &hn.Next, h)
					}
				case 3, 4:
					a, b := pick(live), pick(live)
					c.Store(a, &Get[node](c, a).Next, b)
				case 5:
					a, b := pick(live), pick(live)
					Get[node](c, a).Other.Set(c, a, b)
				case 6:
					n := Get[node](c, pick(live))
					if rng.Intn(2) == 0 {
						n.Next = Nil
					} else {
						n.Kids = nil
					}
				case 7:
					require.NoError(t, c.AddSoftRoot(pick(live)))
				case 8:
					if roots := c.SoftRoots(); len(roots) > 1 {
						c.DelSoftRoot(pick(roots))
					}
				case 9:
					if rng.Intn(4) == 0 {
						h := pick(live)
						gone[h] = true
						require.NoError(t, c.Destroy(h))
					}
				case 10:
					if rng.Intn(4) == 0 {
						h := pick(live)
						gone[h] = true
						require.NoError(t, c.Release(h))
					}
				default:
					c.StepN(1 + rng.Intn(20))
				}

				_, err := c.Verify()
				require.NoError(t, err, "step %d", step)
			}

			c.FullGC()
			r, err := c.Verify()
			require.NoError(t, err)
			assert.Equal(t, 0, r.Unreachable, "everything unreachable was reclaimed")
			assert.Equal(t, 0, r.Condemned)
			assert.Equal(t, r.Objects, c.Objects())
		})
	}
}
