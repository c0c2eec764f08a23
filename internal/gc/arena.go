package gc

import (
	"unsafe"

	"github.com/engine-gc/pkg/collections"
)

const (
	pageShift = 10
	pageSize  = 1 << pageShift
	pageMask  = pageSize - 1

	objectMagic uint32 = 0x4f424a21
)

type listID uint8

const (
	inNone listID = iota
	inObjects
	inFinalize
)

// slot is the object header plus the payload it guards.
type slot struct {
	magic  uint32
	gen    uint32
	marked uint8
	where  listID
	inGray bool
	flags  Flags
	class  *ClassDescriptor
	size   uint64
	obj    any
	base   unsafe.Pointer
	list   links
	gray   links
}

// slotOverhead is charged to every allocation on top of the instance size.
var slotOverhead = uint64(unsafe.Sizeof(slot{}))

// arena hands out slots from fixed-size pages so slot addresses never move.
type arena struct {
	pages [][]slot
	used  int32
	live  int
	max   int
	free  *collections.Stack[int32]
}

func newArena(max int) arena {
	return arena{max: max, free: collections.NewStack[int32](pageSize)}
}

func (a *arena) at(i int32) *slot {
	return &a.pages[i>>pageShift][i&pageMask]
}

func (a *arena) alloc() (int32, bool) {
	if i, ok := a.free.Pop(); ok {
		a.live++
		return i, true
	}
	if a.max > 0 && int(a.used) >= a.max {
		return noSlot, false
	}
	if int(a.used>>pageShift) >= len(a.pages) {
		a.pages = append(a.pages, make([]slot, pageSize))
	}
	i := a.used
	a.used++
	a.live++
	s := a.at(i)
	s.list = links{noSlot, noSlot}
	s.gray = links{noSlot, noSlot}
	return i, true
}

// release clears the slot and bumps its generation so outstanding handles go
// stale.
func (a *arena) release(i int32) {
	s := a.at(i)
	*s = slot{
		gen:  s.gen + 1,
		list: links{noSlot, noSlot},
		gray: links{noSlot, noSlot},
	}
	a.free.Push(i)
	a.live--
}
