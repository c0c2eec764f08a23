package gc

import "fmt"

// Handle is a stable reference to a managed object. The low 32 bits hold the
// slot index plus one, the high 32 bits the slot generation. The zero value is
// the nil handle.
type Handle uint64

// Nil is the handle that refers to nothing.
const Nil Handle = 0

func makeHandle(index int32, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(index)+1))
}

// IsNil reports whether h refers to nothing.
func (h Handle) IsNil() bool {
	return h == Nil
}

func (h Handle) index() int32 {
	return int32(uint32(h)) - 1
}

func (h Handle) gen() uint32 {
	return uint32(h >> 32)
}

// String formats the handle as obj#<index>.<generation>.
func (h Handle) String() string {
	if h == Nil {
		return "nil"
	}
	return fmt.Sprintf("obj#%d.%d", h.index(), h.gen())
}
