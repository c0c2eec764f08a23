// Package script runs line-oriented collector scenarios. Each line is one
// command tokenized shell style; '#' starts a comment.
//
//	new a              # allocate a node named a
//	new r res          # allocate a resource with a teardown hook
//	root a             # hold a in a script root slot
//	link a next b      # a.next = b, through the write barrier
//	fullgc
//	expect alive b
package script

import (
	"github.com/engine-gc/internal/gc"
)

// Node is the general scripted object. Named reference fields live in Refs,
// Weak is a tolerant reference read through the read barrier.
type Node struct {
	Name string
	Refs map[string]gc.Handle
	Weak gc.Tracked[Node]
}

// Leaf holds no references.
type Leaf struct {
	Name string
}

// Resource records its teardown in the interpreter's log.
type Resource struct {
	Name   string
	Ref    gc.Handle
	onDead func(name string)
}

// OnDestroy implements gc.Destroyer.
func (r *Resource) OnDestroy(c *gc.Collector, self gc.Handle) {
	if r.onDead != nil {
		r.onDead(r.Name)
	}
}

func registerClasses(reg *gc.Registry) error {
	if _, err := gc.Register[Node](reg, "node", nil); err != nil {
		return err
	}
	if _, err := gc.Register[Leaf](reg, "leaf", nil); err != nil {
		return err
	}
	_, err := gc.Register[Resource](reg, "res", nil)
	return err
}
