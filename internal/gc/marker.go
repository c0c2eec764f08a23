package gc

// Marker is handed to root marker callbacks. It marks handles held by engine
// state that is not a managed object.
type Marker struct {
	c     *Collector
	visit func(Handle)
}

// Mark marks h as a root. Nil and stale handles are ignored.
func (m *Marker) Mark(h Handle) {
	if m.visit != nil {
		if h != Nil {
			m.visit(h)
		}
		return
	}
	m.c.markHandle(h)
}

// MarkField marks the handle stored in field and clears the field when the
// referent is gone or wants to die.
func (m *Marker) MarkField(field *Handle) {
	if *field == Nil {
		return
	}
	if m.visit != nil {
		m.visit(*field)
		return
	}
	if !m.c.markEdge(*field) {
		*field = Nil
	}
}

// AddRootMarker registers fn to report roots at the start and at the end of
// every mark phase. The returned id removes it.
func (c *Collector) AddRootMarker(fn func(*Marker)) int {
	c.nextMarker++
	c.markers = append(c.markers, rootMarker{id: c.nextMarker, fn: fn})
	return c.nextMarker
}

// RemoveRootMarker unregisters a root marker.
func (c *Collector) RemoveRootMarker(id int) bool {
	for k, rm := range c.markers {
		if rm.id == id {
			c.markers = append(c.markers[:k], c.markers[k+1:]...)
			return true
		}
	}
	return false
}

func (c *Collector) visitRoots(fn func(Handle)) {
	for _, h := range c.fixed {
		fn(h)
	}
	for _, h := range c.softRoots {
		fn(h)
	}
	if len(c.markers) > 0 {
		m := Marker{c: c, visit: fn}
		for _, rm := range c.markers {
			rm.fn(&m)
		}
	}
}
