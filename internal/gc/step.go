package gc

import (
	"math"
	"reflect"
	"unsafe"
)

// CheckGC runs a paced step once allocation has reached the threshold. Call
// it after allocating.
func (c *Collector) CheckGC() {
	if c.allocBytes >= c.threshold {
		c.Step()
	}
}

// Step performs one paced increment of collection work. The budget is
// StepSize scaled by StepMul; allocation beyond the threshold accrues debt
// that pulls the next step closer.
func (c *Collector) Step() {
	if c.inStep {
		return
	}
	budget := max(c.cfg.StepSize*c.cfg.StepMul/100, 1)
	if c.cfg.StepMul == StepMulUnlimited {
		budget = math.MaxInt / 2
	}
	if c.allocBytes > c.threshold {
		c.debt += c.allocBytes - c.threshold
	}

	c.run(budget)

	if c.state != StatePause {
		if c.debt < c.cfg.StepBytes {
			c.threshold = c.allocBytes + c.cfg.StepBytes
		} else {
			c.debt -= c.cfg.StepBytes
			c.threshold = c.allocBytes
		}
	}
}

// StepN performs about n units of work and returns the units spent. A step
// stops early at a phase transition, so mark and sweep work never share one
// call.
func (c *Collector) StepN(n int) int {
	if c.inStep {
		return 0
	}
	if n <= 0 {
		n = 1
	}
	return c.run(n)
}

// FullGC finishes the cycle in flight, then runs one complete cycle.
func (c *Collector) FullGC() {
	if c.inStep {
		return
	}
	c.inStep = true
	defer func() { c.inStep = false }()

	for c.state != StatePause {
		c.singleStep()
	}
	c.singleStep()
	for c.state != StatePause {
		c.singleStep()
	}
	c.stats.FullCollections++
}

// StartCollection lowers the threshold to the current allocation level so the
// next CheckGC starts a cycle.
func (c *Collector) StartCollection() {
	if c.threshold > c.allocBytes {
		c.threshold = c.allocBytes
	}
}

func (c *Collector) run(budget int) int {
	c.inStep = true
	defer func() { c.inStep = false }()

	done := 0
	for {
		cost := c.singleStep()
		done += cost
		if cost == 0 || done >= budget || c.state == StatePause {
			return done
		}
	}
}

// singleStep advances the state machine by one unit of its current phase. A
// zero return marks a phase transition.
func (c *Collector) singleStep() int {
	switch c.state {
	case StatePause:
		c.markRoot()
		return 0
	case StatePropagate:
		if c.gray.head != noSlot {
			return c.propagateMark()
		}
		c.atomic()
		return 0
	case StateSweep:
		if c.sweepCursor == noSlot {
			c.setState(StateFinalize)
			return 0
		}
		return c.sweepStep()
	case StateFinalize:
		if c.finalize.head == noSlot {
			c.finishCycle()
			return 0
		}
		return c.finalizeStep()
	}
	return 0
}

// markRoot flips the current white, so every existing object becomes a
// collection candidate and every new one is born already marked, then greys
// the root set.
func (c *Collector) markRoot() {
	c.currentWhite ^= whiteBits
	c.cycle = CycleStats{
		Cycle:      c.stats.Cycles + 1,
		StartBytes: c.allocBytes,
		Threshold:  c.threshold,
	}
	c.cycleStart = c.clock.Now()
	c.setState(StatePropagate)
	c.markRoots()
}

func (c *Collector) markRoots() {
	for _, h := range c.fixed {
		c.markHandle(h)
	}
	for _, h := range c.softRoots {
		c.markHandle(h)
	}
	if len(c.markers) > 0 {
		m := Marker{c: c}
		for _, rm := range c.markers {
			rm.fn(&m)
		}
	}
}

func (c *Collector) markHandle(h Handle) {
	i, s := c.resolve(h)
	if s == nil || s.flags&FlagEuthanizeMe != 0 {
		return
	}
	if c.isCandidate(s) {
		c.greyObject(i, s)
	}
}

func (c *Collector) greyObject(i int32, s *slot) {
	s.marked &^= whiteBits | black
	s.inGray = true
	c.gray.pushFront(&c.arena, i)
}

// markEdge is the visitor used while scanning. A false return clears the
// field: the referent is gone or wants to die.
func (c *Collector) markEdge(h Handle) bool {
	i, s := c.resolve(h)
	if s == nil || s.flags&FlagEuthanizeMe != 0 {
		return false
	}
	if c.isCandidate(s) {
		c.greyObject(i, s)
	}
	return true
}

func (c *Collector) propagateMark() int {
	i := c.gray.popFront(&c.arena)
	s := c.arena.at(i)
	s.inGray = false
	s.marked |= black
	c.cycle.Marked++
	c.stats.Marked++
	if s.flags&FlagEuthanizeMe == 0 && !s.class.noRefs {
		visitRefs(s.base, s.class.refs, c.markFn)
	}
	return 1
}

// atomic closes the mark phase without yielding: roots are marked again
// because root markers and soft roots carry no barrier, the gray list is
// drained, and the sweep cursor is placed at the head of the object list.
func (c *Collector) atomic() {
	c.markRoots()
	for c.gray.head != noSlot {
		c.propagateMark()
	}
	c.estimate = c.allocBytes
	c.sweepCursor = c.objects.head
	c.setState(StateSweep)
}

func (c *Collector) sweepStep() int {
	dead := c.otherWhite()
	n := 0
	for n < c.cfg.SweepMax && c.sweepCursor != noSlot {
		i := c.sweepCursor
		s := c.arena.at(i)
		c.sweepCursor = s.list.next
		n++

		if c.cfg.Debug {
			if s.marked&(whiteBits|black) == 0 || s.inGray {
				c.assertFail("gray object %s reached the sweep", c.handleOf(i))
			}
			if s.where != inObjects {
				c.assertFail("object %s swept from list %d", c.handleOf(i), s.where)
			}
		}

		if s.flags&FlagFixed != 0 || (s.marked&dead == 0 && s.flags&FlagEuthanizeMe == 0) {
			s.marked = c.currentWhite
			continue
		}

		c.objects.remove(&c.arena, i)
		s.where = inFinalize
		c.finalize.pushBack(&c.arena, i)
		c.cycle.Condemned++
		c.stats.Condemned++
	}
	c.stats.Swept += uint64(n)
	return n
}

func (c *Collector) finalizeStep() int {
	n := 0
	for n < c.cfg.FinalizeMax && c.finalize.head != noSlot {
		i := c.finalize.popFront(&c.arena)
		s := c.arena.at(i)
		s.where = inNone
		s.flags |= FlagReleased
		c.teardown(i)
		c.freeSlot(i)
		c.cycle.Finalized++
		c.stats.Finalized++
		n++
	}
	return n * c.cfg.FinalizeCost
}

func (c *Collector) finishCycle() {
	c.cycle.EndBytes = c.allocBytes
	c.cycle.Duration = c.clock.Since(c.cycleStart)
	c.stats.Cycles++
	c.debt = 0
	c.setThreshold()
	c.cycle.NextThreshold = c.threshold

	c.history.Put(c.cycle)

	c.log.Debug("gc cycle %d done: marked=%d condemned=%d finalized=%d bytes=%d->%d threshold=%d",
		c.cycle.Cycle, c.cycle.Marked, c.cycle.Condemned, c.cycle.Finalized,
		c.cycle.StartBytes, c.cycle.EndBytes, c.threshold)

	c.setState(StatePause)
	if c.observer != nil {
		c.observer.OnCycleDone(c.cycle)
	}
}

// teardown runs the object's OnDestroy once. Collection cannot be driven
// from inside OnDestroy.
func (c *Collector) teardown(i int32) {
	s := c.arena.at(i)
	if s.flags&FlagCleanup != 0 {
		return
	}
	s.flags |= FlagCleanup
	if !s.class.destroyable {
		return
	}
	d := s.obj.(Destroyer)
	prev := c.inStep
	c.inStep = true
	d.OnDestroy(c, makeHandle(i, s.gen))
	c.inStep = prev
}

func (c *Collector) freeSlot(i int32) {
	s := c.arena.at(i)
	size := s.size
	if c.allocBytes >= size {
		c.allocBytes -= size
	} else {
		c.allocBytes = 0
	}
	if c.estimate >= size {
		c.estimate -= size
	} else {
		c.estimate = 0
	}
	c.stats.Freed++
	c.stats.FreedBytes += size
	if c.state != StatePause {
		c.cycle.Freed++
	}
	c.arena.release(i)
}

// visitRefs calls fn for every non-nil reference slot of the instance at
// base. A false return from fn clears that slot.
func visitRefs(base unsafe.Pointer, refs []RefField, fn func(Handle) bool) {
	for k := range refs {
		rf := &refs[k]
		p := unsafe.Add(base, rf.Offset)
		switch rf.Kind {
		case RefHandle, RefTracked:
			hp := (*Handle)(p)
			if *hp != Nil && !fn(*hp) {
				*hp = Nil
			}
		case RefSlice:
			// Tracked[T] has the layout of a single Handle.
			hs := *(*[]Handle)(p)
			for j := range hs {
				if hs[j] != Nil && !fn(hs[j]) {
					hs[j] = Nil
				}
			}
		case RefStructSlice:
			v := reflect.NewAt(rf.Type, p).Elem()
			n := v.Len()
			if n == 0 {
				continue
			}
			first := v.Index(0).Addr().UnsafePointer()
			for j := 0; j < n; j++ {
				visitRefs(unsafe.Add(first, uintptr(j)*rf.Stride), rf.Elem, fn)
			}
		case RefMap:
			v := reflect.NewAt(rf.Type, p).Elem()
			if v.Len() == 0 {
				continue
			}
			var cleared []reflect.Value
			iter := v.MapRange()
			for iter.Next() {
				h := handleOfValue(iter.Value())
				if h != Nil && !fn(h) {
					cleared = append(cleared, iter.Key())
				}
			}
			if len(cleared) > 0 {
				zero := reflect.Zero(rf.Type.Elem())
				for _, key := range cleared {
					v.SetMapIndex(key, zero)
				}
			}
		}
	}
}

func handleOfValue(v reflect.Value) Handle {
	if v.Kind() == reflect.Struct {
		return Handle(v.Field(0).Uint())
	}
	return Handle(v.Uint())
}
