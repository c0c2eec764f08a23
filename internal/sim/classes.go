// Package sim is a game-tick mutator: a level full of actors that think,
// target each other, carry inventories and own HUD widgets. Every tick it
// allocates, rewires and kills part of that cyclic graph and drives the
// collector the way an engine main loop does.
package sim

import (
	"github.com/engine-gc/internal/gc"
)

// Level is the fixed level-state object. It owns the actor list.
type Level struct {
	Actors []gc.Handle
	HUD    gc.Handle
	// Population counts actors whose teardown has not run.
	Population int
	TornDown   int
}

// Thinker is the base of everything that gets a tick.
type Thinker struct {
	Level gc.Handle
	Tics  int
}

// Actor is a thinker living in the level.
type Actor struct {
	Thinker
	Target    gc.Tracked[Actor]
	Master    gc.Handle
	Inventory [InventorySlots]gc.Handle
	Tags      map[string]gc.Handle
	HUD       []HUDEntry
	Health    int
}

// InventorySlots is the fixed inventory size of an actor.
const InventorySlots = 4

// HUDEntry ties a widget to an actor's status bar slot.
type HUDEntry struct {
	Widget gc.Handle
	Slot   int
}

// OnDestroy detaches the actor from its level's population count.
func (a *Actor) OnDestroy(c *gc.Collector, self gc.Handle) {
	if lvl := gc.Get[Level](c, a.Level); lvl != nil {
		lvl.Population--
		lvl.TornDown++
	}
	a.Tags = nil
}

// Item is an inventory entry. Owner points back at the carrying actor.
type Item struct {
	Owner  gc.Handle
	Amount int
}

// Widget is a node of the HUD tree.
type Widget struct {
	Parent   gc.Handle
	Children []gc.Handle
	Label    string
}

// Classes is the registered class table of the simulation.
type Classes struct {
	Level   *gc.ClassDescriptor
	Thinker *gc.ClassDescriptor
	Actor   *gc.ClassDescriptor
	Item    *gc.ClassDescriptor
	Widget  *gc.ClassDescriptor
}

// Register adds the simulation classes to reg.
func Register(reg *gc.Registry) (*Classes, error) {
	var cls Classes
	var err error
	if cls.Level, err = gc.Register[Level](reg, "Level", nil); err != nil {
		return nil, err
	}
	if cls.Thinker, err = gc.Register[Thinker](reg, "Thinker", nil); err != nil {
		return nil, err
	}
	if cls.Actor, err = gc.Register[Actor](reg, "Actor", cls.Thinker); err != nil {
		return nil, err
	}
	if cls.Item, err = gc.Register[Item](reg, "Item", nil); err != nil {
		return nil, err
	}
	if cls.Widget, err = gc.Register[Widget](reg, "Widget", nil); err != nil {
		return nil, err
	}
	return &cls, nil
}
