package gc

// WriteBarrier must follow every store of referent into a reference field of
// holder. While marking, it greys referent when the store would create an
// edge from a scanned (or newborn) object to an unmarked one. A Nil holder is
// the root form: the holder is non-object state, always treated as scanned.
func (c *Collector) WriteBarrier(holder, referent Handle) {
	if c.state != StatePropagate || referent == Nil {
		return
	}
	ri, rs := c.resolve(referent)
	if rs == nil || rs.flags&FlagEuthanizeMe != 0 || !c.isCandidate(rs) {
		return
	}
	if holder != Nil {
		_, hs := c.resolve(holder)
		if hs == nil {
			return
		}
		if hs.marked&black == 0 && hs.marked&c.currentWhite == 0 {
			// gray or unmarked holders are scanned later
			return
		}
	}
	c.greyObject(ri, rs)
	c.stats.BarrierHits++
}

// WriteBarrierRoot is WriteBarrier for references kept outside any managed
// object.
func (c *Collector) WriteBarrierRoot(referent Handle) {
	c.WriteBarrier(Nil, referent)
}

// Store writes referent into field, a reference field of holder, and runs the
// write barrier.
func (c *Collector) Store(holder Handle, field *Handle, referent Handle) {
	*field = referent
	c.WriteBarrier(holder, referent)
}

// ReadBarrier returns the handle in field unless its referent is gone, wants
// to die or is being torn down; then the field is cleared and Nil returned.
// It is valid in every state.
func (c *Collector) ReadBarrier(field *Handle) Handle {
	h := *field
	if h == Nil {
		return Nil
	}
	_, s := c.resolve(h)
	if s == nil || s.flags&(FlagEuthanizeMe|FlagReleased) != 0 || s.where == inFinalize {
		*field = Nil
		c.stats.ReadClears++
		return Nil
	}
	return h
}

// Tracked is a reference field that tolerates its referent dying. Reads go
// through the read barrier, writes through the write barrier. It has the
// layout of a Handle.
type Tracked[T any] struct {
	h Handle
}

func (t *Tracked[T]) trackedHandle() *Handle { return &t.h }

// Get returns the referent, or nil once it is gone or wants to die.
func (t *Tracked[T]) Get(c *Collector) *T {
	h := c.ReadBarrier(&t.h)
	if h == Nil {
		return nil
	}
	return Get[T](c, h)
}

// Handle returns the referent's handle through the read barrier.
func (t *Tracked[T]) Handle(c *Collector) Handle {
	return c.ReadBarrier(&t.h)
}

// Set stores h into the field owned by holder.
func (t *Tracked[T]) Set(c *Collector, holder, h Handle) {
	t.h = h
	c.WriteBarrier(holder, h)
}

// SetRoot stores h into a field kept outside any managed object.
func (t *Tracked[T]) SetRoot(c *Collector, h Handle) {
	t.h = h
	c.WriteBarrierRoot(h)
}

// Raw returns the stored handle without a barrier.
func (t Tracked[T]) Raw() Handle { return t.h }

// Clear nils the field. Storing nil needs no barrier.
func (t *Tracked[T]) Clear() { t.h = Nil }

// Track wraps h.
func Track[T any](h Handle) Tracked[T] { return Tracked[T]{h: h} }
