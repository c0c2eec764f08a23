package gc

import apperrors "github.com/engine-gc/pkg/errors"

// Destroy asks the object to die. Its teardown runs now, its fixed pin and
// soft roots are dropped, and the next sweep reclaims it whatever its colour.
// Tracked fields pointing at it read as nil from here on.
func (c *Collector) Destroy(h Handle) error {
	i, s := c.resolve(h)
	if s == nil {
		return c.contractError(apperrors.CodeInvalidHandle, "destroy %s: stale handle", h)
	}
	if s.flags&(FlagEuthanizeMe|FlagReleased) != 0 || s.where == inFinalize {
		return c.contractError(apperrors.CodeDoubleRelease, "destroy %s: already dying", h)
	}
	s.flags |= FlagEuthanizeMe
	c.unpin(h, s)
	c.stats.Destroyed++
	c.teardown(i)
	return nil
}

// Release finalizes and frees the object immediately, in any collector
// state. It is unlinked from every list it sits in first.
func (c *Collector) Release(h Handle) error {
	i, s := c.resolve(h)
	if s == nil {
		return c.contractError(apperrors.CodeInvalidHandle, "release %s: stale handle", h)
	}
	if s.flags&FlagReleased != 0 {
		return c.contractError(apperrors.CodeDoubleRelease, "release %s: teardown in progress", h)
	}
	s.flags |= FlagReleased
	c.detach(i, s)
	c.teardown(i)
	c.freeSlot(i)
	c.stats.Released++
	return nil
}

// detach unlinks the slot from the object list or finalize queue, the gray
// list, the fixed set and the soft-root registry.
func (c *Collector) detach(i int32, s *slot) {
	switch s.where {
	case inObjects:
		if c.sweepCursor == i {
			c.sweepCursor = s.list.next
		}
		c.objects.remove(&c.arena, i)
	case inFinalize:
		c.finalize.remove(&c.arena, i)
	}
	s.where = inNone
	if s.inGray {
		c.gray.remove(&c.arena, i)
		s.inGray = false
	}
	c.unpin(makeHandle(i, s.gen), s)
}

func (c *Collector) unpin(h Handle, s *slot) {
	if s.flags&FlagFixed != 0 {
		s.flags &^= FlagFixed
		c.fixed = removeHandle(c.fixed, h, true)
	}
	if s.flags&FlagRooted != 0 {
		s.flags &^= FlagRooted
		c.softRoots = removeHandle(c.softRoots, h, true)
	}
}

// FreeAll tears down and frees every object, fixed ones included, and
// returns the collector to Pause. Objects allocated by teardown code are
// freed as well. Only for shutdown: no mutation may follow.
func (c *Collector) FreeAll() int {
	prev := c.inStep
	c.inStep = true
	defer func() { c.inStep = prev }()

	n := 0
	for {
		i := c.finalize.head
		if i == noSlot {
			i = c.objects.head
		}
		if i == noSlot {
			break
		}
		s := c.arena.at(i)
		s.flags |= FlagReleased
		c.detach(i, s)
		c.teardown(i)
		c.freeSlot(i)
		n++
	}

	c.gray.reset()
	c.fixed = nil
	c.softRoots = nil
	c.sweepCursor = noSlot
	c.estimate = 0
	c.debt = 0
	c.setState(StatePause)
	c.setThreshold()
	c.log.Debug("gc free all: %d objects freed", n)
	return n
}
