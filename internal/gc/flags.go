package gc

import "strings"

// Colour bits kept in slot.marked. Gray is the absence of all three.
const (
	white0 uint8 = 1 << iota
	white1
	black

	whiteBits = white0 | white1
)

// Flags describe an object's lifecycle state.
type Flags uint16

const (
	// FlagFixed objects are never swept and act as roots.
	FlagFixed Flags = 1 << iota
	// FlagRooted is set while at least one soft-root entry pins the object.
	FlagRooted
	// FlagEuthanizeMe marks an object that asked to die through Destroy.
	FlagEuthanizeMe
	// FlagCleanup is set once the object's teardown has run.
	FlagCleanup
	// FlagJustSpawned is set on creation and cleared by the mutator.
	FlagJustSpawned
	// FlagTransient marks objects that a serializer should skip.
	FlagTransient
	// FlagReleased is set while the object is being torn down and freed.
	FlagReleased
)

// mutatorFlags may be toggled through SetFlags and ClearFlags.
const mutatorFlags = FlagJustSpawned | FlagTransient

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagFixed, "fixed"},
	{FlagRooted, "rooted"},
	{FlagEuthanizeMe, "euthanize"},
	{FlagCleanup, "cleanup"},
	{FlagJustSpawned, "just_spawned"},
	{FlagTransient, "transient"},
	{FlagReleased, "released"},
}

// Has reports whether all bits of mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// String lists the set flags separated by '|'.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Color is the tri-color view of an object as seen by the current cycle.
type Color uint8

const (
	// ColorWhite means not yet proven reachable in the running cycle.
	ColorWhite Color = iota
	// ColorGray means reachable with references not yet scanned.
	ColorGray
	// ColorBlack means reachable and scanned, or allocated during the cycle.
	ColorBlack
)

// String returns the colour name.
func (c Color) String() string {
	switch c {
	case ColorWhite:
		return "white"
	case ColorGray:
		return "gray"
	case ColorBlack:
		return "black"
	default:
		return "unknown"
	}
}
