package gc

import (
	"fmt"

	"github.com/engine-gc/pkg/collections"
	apperrors "github.com/engine-gc/pkg/errors"
)

// VerifyReport summarizes a Verify walk.
type VerifyReport struct {
	Objects     int
	Condemned   int
	Reachable   int
	Unreachable int
	StaleRefs   int
	Problems    []string
}

// Verify checks the collector's structures between steps: list links and
// counts, gray list colours, the strong tri-color invariant while marking,
// and that nothing reachable from the roots sits in the finalize queue. It
// returns an INVARIANT_VIOLATION error listing every problem found.
func (c *Collector) Verify() (*VerifyReport, error) {
	r := &VerifyReport{}
	problem := func(format string, args ...interface{}) {
		r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
	}

	r.Objects = c.checkList(&c.objects, inObjects, "objects", problem)
	r.Condemned = c.checkList(&c.finalize, inFinalize, "finalize", problem)
	if r.Objects+r.Condemned != c.arena.live {
		problem("%d objects linked, %d allocated", r.Objects+r.Condemned, c.arena.live)
	}

	gray := 0
	for i, prev := c.gray.head, noSlot; i != noSlot; prev, i = i, c.arena.at(i).gray.next {
		s := c.arena.at(i)
		if s.gray.prev != prev {
			problem("gray list: %s has prev %d, want %d", c.handleOf(i), s.gray.prev, prev)
		}
		if !s.inGray || s.marked&(whiteBits|black) != 0 {
			problem("gray list: %s is not gray", c.handleOf(i))
		}
		gray++
		if gray > c.arena.live {
			problem("gray list: cycle")
			break
		}
	}
	if gray != c.gray.n {
		problem("gray list: %d linked, count says %d", gray, c.gray.n)
	}
	if c.state != StatePropagate && gray > 0 {
		problem("%d gray objects outside propagate", gray)
	}

	if c.state == StatePropagate {
		c.checkTriColor(problem)
	}

	reached := collections.NewBitset(int(c.arena.used))
	queue := collections.NewQueue[int32](64)
	push := func(h Handle) {
		i, s := c.resolve(h)
		if s == nil {
			r.StaleRefs++
			return
		}
		if !reached.TestAndSet(int(i)) {
			queue.Enqueue(i)
		}
	}
	c.visitRoots(push)
	for {
		i, ok := queue.Dequeue()
		if !ok {
			break
		}
		s := c.arena.at(i)
		if s.where == inFinalize && s.flags&FlagEuthanizeMe == 0 {
			problem("reachable object %s is condemned", c.handleOf(i))
		}
		if s.flags&FlagEuthanizeMe != 0 || s.class.noRefs {
			continue
		}
		visitRefs(s.base, s.class.refs, func(h Handle) bool {
			push(h)
			return true
		})
	}
	r.Reachable = reached.Count()
	r.Unreachable = r.Objects + r.Condemned - r.Reachable

	if len(r.Problems) > 0 {
		return r, apperrors.Newf(apperrors.CodeInvariant, "heap verification failed: %d problems, first: %s", len(r.Problems), r.Problems[0])
	}
	return r, nil
}

func (c *Collector) checkList(l *indexList, where listID, name string, problem func(string, ...interface{})) int {
	n := 0
	for i, prev := l.head, noSlot; i != noSlot; prev, i = i, c.arena.at(i).list.next {
		s := c.arena.at(i)
		if s.magic != objectMagic {
			problem("%s list: slot %d has bad magic %#x", name, i, s.magic)
		}
		if s.where != where {
			problem("%s list: %s tagged as list %d", name, c.handleOf(i), s.where)
		}
		if s.list.prev != prev {
			problem("%s list: %s has prev %d, want %d", name, c.handleOf(i), s.list.prev, prev)
		}
		n++
		if n > c.arena.live {
			problem("%s list: cycle", name)
			break
		}
	}
	if n != l.n {
		problem("%s list: %d linked, count says %d", name, n, l.n)
	}
	return n
}

// checkTriColor reports every edge from a scanned or newborn object to an
// unmarked one that is not on its way to the gray list.
func (c *Collector) checkTriColor(problem func(string, ...interface{})) {
	for i := c.objects.head; i != noSlot; i = c.arena.at(i).list.next {
		s := c.arena.at(i)
		if s.flags&FlagEuthanizeMe != 0 || s.class.noRefs {
			continue
		}
		if s.marked&black == 0 && s.marked&c.currentWhite == 0 {
			continue
		}
		holder := c.handleOf(i)
		visitRefs(s.base, s.class.refs, func(h Handle) bool {
			_, t := c.resolve(h)
			if t != nil && t.flags&FlagEuthanizeMe == 0 && c.isCandidate(t) {
				problem("black object %s points to white %s", holder, h)
			}
			return true
		})
	}
}
