package gc

import (
	"reflect"
	"time"
	"unsafe"

	"github.com/engine-gc/pkg/collections"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/utils"
)

// State is the collector's position in a cycle.
type State uint8

const (
	// StatePause waits for the allocation threshold.
	StatePause State = iota
	// StatePropagate greys and scans reachable objects.
	StatePropagate
	// StateSweep walks the object list and queues dead objects.
	StateSweep
	// StateFinalize tears down and frees the queued objects.
	StateFinalize
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePause:
		return "pause"
	case StatePropagate:
		return "propagate"
	case StateSweep:
		return "sweep"
	case StateFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Destroyer is implemented by payload types with teardown logic. OnDestroy
// runs exactly once per object, either from Destroy, Release, the finalize
// phase or FreeAll. It may touch other live objects and allocate.
type Destroyer interface {
	OnDestroy(c *Collector, self Handle)
}

var destroyerType = reflect.TypeOf((*Destroyer)(nil)).Elem()

type rootMarker struct {
	id int
	fn func(*Marker)
}

// Collector owns one managed object graph.
type Collector struct {
	cfg      Config
	registry *Registry
	log      utils.Logger
	clock    utils.Clock
	observer Observer

	arena    arena
	objects  indexList
	finalize indexList
	gray     indexList

	fixed      []Handle
	softRoots  []Handle
	markers    []rootMarker
	nextMarker int
	validated  map[*ClassDescriptor]bool

	state        State
	currentWhite uint8
	sweepCursor  int32
	inStep       bool

	allocBytes uint64
	estimate   uint64
	threshold  uint64
	debt       uint64

	stats      Stats
	cycle      CycleStats
	cycleStart time.Time
	history    *collections.RingBuffer[CycleStats]

	markFn func(Handle) bool
}

// New creates a collector over reg.
func New(reg *Registry, cfg Config) *Collector {
	cfg.normalize()
	c := &Collector{
		cfg:          cfg,
		registry:     reg,
		log:          cfg.Logger,
		clock:        cfg.Clock,
		observer:     cfg.Observer,
		arena:        newArena(cfg.MaxObjects),
		objects:      newIndexList(objectLinks),
		finalize:     newIndexList(objectLinks),
		gray:         newIndexList(grayLinks),
		validated:    make(map[*ClassDescriptor]bool),
		currentWhite: white0,
		sweepCursor:  noSlot,
		history:      collections.NewRingBuffer[CycleStats](cfg.HistorySize),
	}
	c.markFn = c.markEdge
	c.setThreshold()
	return c
}

// Registry returns the class registry backing this collector.
func (c *Collector) Registry() *Registry { return c.registry }

// Config returns the normalized configuration.
func (c *Collector) Config() Config { return c.cfg }

// State returns the current phase.
func (c *Collector) State() State { return c.state }

// Create allocates a zeroed T, links it into the object list coloured the
// current white and returns its handle. T must be registered. Arena
// exhaustion is fatal.
func Create[T any](c *Collector) (Handle, *T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	cls, ok := c.registry.ClassOf(t)
	if !ok {
		panic(apperrors.Newf(apperrors.CodeClassError, "type %s is not registered", t))
	}
	p := new(T)
	return c.link(cls, p, unsafe.Pointer(p)), p
}

// Get resolves h to its payload. It returns nil for stale handles and for
// objects of another type. Get performs no read barrier.
func Get[T any](c *Collector, h Handle) *T {
	_, s := c.resolve(h)
	if s == nil {
		return nil
	}
	p, _ := s.obj.(*T)
	return p
}

func (c *Collector) link(cls *ClassDescriptor, obj any, base unsafe.Pointer) Handle {
	if _, err := cls.Refs(); err != nil {
		panic(err)
	}
	if c.cfg.Debug && !c.validated[cls] {
		if err := cls.Validate(); err != nil {
			panic(err)
		}
		c.validated[cls] = true
	}

	i, ok := c.arena.alloc()
	if !ok {
		err := apperrors.Newf(apperrors.CodeOutOfMemory, "cannot allocate %s: %d objects live", cls.name, c.arena.live)
		c.log.Error("%v", err)
		panic(err)
	}

	s := c.arena.at(i)
	s.magic = objectMagic
	s.marked = c.currentWhite
	s.flags = FlagJustSpawned
	s.class = cls
	s.size = uint64(cls.size) + slotOverhead
	s.obj = obj
	s.base = base
	s.where = inObjects
	c.objects.pushFront(&c.arena, i)

	c.allocBytes += s.size
	c.stats.Allocated++
	c.stats.AllocatedBytes += s.size
	return makeHandle(i, s.gen)
}

func (c *Collector) resolve(h Handle) (int32, *slot) {
	if h == Nil {
		return noSlot, nil
	}
	i := h.index()
	if i < 0 || i >= c.arena.used {
		return noSlot, nil
	}
	s := c.arena.at(i)
	if s.gen != h.gen() || s.obj == nil {
		return noSlot, nil
	}
	if c.cfg.Debug && s.magic != objectMagic {
		c.assertFail("slot %d: bad magic %#x", i, s.magic)
	}
	return i, s
}

func (c *Collector) handleOf(i int32) Handle {
	return makeHandle(i, c.arena.at(i).gen)
}

func (c *Collector) otherWhite() uint8 {
	return c.currentWhite ^ whiteBits
}

// isCandidate reports whether s still carries the white being collected.
func (c *Collector) isCandidate(s *slot) bool {
	return s.marked&c.otherWhite() != 0
}

// Valid reports whether h refers to an allocated object.
func (c *Collector) Valid(h Handle) bool {
	_, s := c.resolve(h)
	return s != nil
}

// Class returns the class of the object behind h.
func (c *Collector) Class(h Handle) (*ClassDescriptor, bool) {
	_, s := c.resolve(h)
	if s == nil {
		return nil, false
	}
	return s.class, true
}

// Flags returns the object's flags.
func (c *Collector) Flags(h Handle) (Flags, bool) {
	_, s := c.resolve(h)
	if s == nil {
		return 0, false
	}
	return s.flags, true
}

// SetFlags sets mutator flags (JustSpawned, Transient) on the object.
func (c *Collector) SetFlags(h Handle, f Flags) error {
	_, s := c.resolve(h)
	if s == nil {
		return apperrors.Newf(apperrors.CodeInvalidHandle, "set flags on %s", h)
	}
	if f&^mutatorFlags != 0 {
		return apperrors.Newf(apperrors.CodeInvalidInput, "flags %s are owned by the collector", f&^mutatorFlags)
	}
	s.flags |= f
	return nil
}

// ClearFlags clears mutator flags on the object.
func (c *Collector) ClearFlags(h Handle, f Flags) error {
	_, s := c.resolve(h)
	if s == nil {
		return apperrors.Newf(apperrors.CodeInvalidHandle, "clear flags on %s", h)
	}
	if f&^mutatorFlags != 0 {
		return apperrors.Newf(apperrors.CodeInvalidInput, "flags %s are owned by the collector", f&^mutatorFlags)
	}
	s.flags &^= f
	return nil
}

// ColorOf reports the object's colour as seen by the running cycle. Objects
// allocated or already swept during a cycle report black.
func (c *Collector) ColorOf(h Handle) (Color, bool) {
	_, s := c.resolve(h)
	if s == nil {
		return 0, false
	}
	switch {
	case s.marked&black != 0:
		return ColorBlack, true
	case s.marked&whiteBits == 0:
		return ColorGray, true
	case c.state == StatePropagate || c.state == StateSweep:
		if c.isCandidate(s) {
			return ColorWhite, true
		}
		return ColorBlack, true
	default:
		return ColorWhite, true
	}
}

// IsCondemned reports whether the object sits in the finalize queue.
func (c *Collector) IsCondemned(h Handle) bool {
	_, s := c.resolve(h)
	return s != nil && s.where == inFinalize
}

// Fix pins the object as an engine singleton: it is a root and never swept.
func (c *Collector) Fix(h Handle) error {
	i, s := c.resolve(h)
	if s == nil {
		return apperrors.Newf(apperrors.CodeInvalidHandle, "fix %s", h)
	}
	if s.flags&FlagEuthanizeMe != 0 || s.where != inObjects {
		return apperrors.Newf(apperrors.CodeInvalidInput, "cannot fix %s: object is dying", h)
	}
	if s.flags&FlagFixed != 0 {
		return nil
	}
	s.flags |= FlagFixed
	c.fixed = append(c.fixed, h)
	if c.state == StatePropagate && c.isCandidate(s) {
		c.greyObject(i, s)
	}
	return nil
}

// Unfix drops the fixed pin.
func (c *Collector) Unfix(h Handle) {
	_, s := c.resolve(h)
	if s == nil || s.flags&FlagFixed == 0 {
		return
	}
	s.flags &^= FlagFixed
	c.fixed = removeHandle(c.fixed, h, false)
}

// ForEachObject walks the object list, newest first, until fn returns false.
// Condemned objects are not visited. fn must not free objects.
func (c *Collector) ForEachObject(fn func(h Handle, cls *ClassDescriptor) bool) {
	for i := c.objects.head; i != noSlot; {
		s := c.arena.at(i)
		next := s.list.next
		if !fn(makeHandle(i, s.gen), s.class) {
			return
		}
		i = next
	}
}

// References returns the non-nil handles held by the object, in table order.
func (c *Collector) References(h Handle) []Handle {
	_, s := c.resolve(h)
	if s == nil || s.class.noRefs {
		return nil
	}
	var out []Handle
	visitRefs(s.base, s.class.refs, func(r Handle) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Objects returns the number of allocated objects, condemned ones included.
func (c *Collector) Objects() int { return c.arena.live }

func (c *Collector) setState(to State) {
	from := c.state
	c.state = to
	if c.observer != nil && from != to {
		c.observer.OnStateChange(from, to)
	}
}

func (c *Collector) assertFail(format string, args ...interface{}) {
	err := apperrors.Newf(apperrors.CodeInvariant, format, args...)
	c.log.Error("%v", err)
	panic(err)
}

// contractError reports a mutator contract violation. With Debug on it is an
// assertion failure.
func (c *Collector) contractError(code, format string, args ...interface{}) error {
	err := apperrors.Newf(code, format, args...)
	if c.cfg.Debug {
		c.log.Error("%v", err)
		panic(err)
	}
	return err
}

func removeHandle(hs []Handle, h Handle, all bool) []Handle {
	out := hs[:0]
	removed := false
	for _, x := range hs {
		if x == h && (all || !removed) {
			removed = true
			continue
		}
		out = append(out, x)
	}
	for k := len(out); k < len(hs); k++ {
		hs[k] = Nil
	}
	return out
}
