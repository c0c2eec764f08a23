package sim

import (
	"fmt"
	"math/rand"

	"github.com/engine-gc/internal/gc"
	"github.com/engine-gc/pkg/config"
	"github.com/engine-gc/pkg/utils"
)

// MaxPlayers is the size of the player array. Player slots are engine state,
// not managed objects, and reach the collector through a root marker.
const MaxPlayers = 4

const (
	playerSwapTicks = 64
	hudReloadTicks  = 200
)

var tagNames = []string{"buddy", "enemy", "leader"}

// World is the live level plus the engine state around it.
type World struct {
	c     *gc.Collector
	cls   *Classes
	cfg   config.SimConfig
	rng   *rand.Rand
	log   utils.Logger
	level gc.Handle
	hud   gc.Handle

	players  [MaxPlayers]gc.Handle
	markerID int
	tick     int
}

// NewWorld creates the fixed level, the HUD tree and the initial actors.
func NewWorld(c *gc.Collector, cls *Classes, cfg config.SimConfig, log utils.Logger) (*World, error) {
	if log == nil {
		log = &utils.NullLogger{}
	}
	w := &World{
		c:   c,
		cls: cls,
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: log,
	}

	w.level, _ = gc.Create[Level](c)
	if err := c.Fix(w.level); err != nil {
		return nil, fmt.Errorf("fix level: %w", err)
	}
	w.markerID = c.AddRootMarker(func(m *gc.Marker) {
		for i := range w.players {
			m.MarkField(&w.players[i])
		}
	})
	if err := w.reloadHUD(); err != nil {
		return nil, err
	}
	for i := 0; i < cfg.Actors; i++ {
		w.spawn()
	}
	return w, nil
}

// Collector returns the collector the world allocates from.
func (w *World) Collector() *gc.Collector { return w.c }

// Level returns the level object.
func (w *World) Level() *Level { return gc.Get[Level](w.c, w.level) }

// Ticks returns how many ticks ran.
func (w *World) Ticks() int { return w.tick }

// Player returns the actor in player slot i, or Nil.
func (w *World) Player(i int) gc.Handle {
	return w.c.ReadBarrier(&w.players[i])
}

// Close unregisters the world's root marker.
func (w *World) Close() {
	w.c.RemoveRootMarker(w.markerID)
}

// Tick runs one game tick and gives the collector its chance to step.
func (w *World) Tick() error {
	w.tick++
	lvl := w.Level()

	for i := 0; i < w.cfg.SpawnPerTick; i++ {
		w.spawn()
	}
	w.think(lvl)
	if err := w.kill(lvl); err != nil {
		return err
	}
	for i := 0; i < w.cfg.RelinkPerTick && len(lvl.Actors) > 0; i++ {
		if err := w.relink(lvl); err != nil {
			return err
		}
	}
	w.updateHUD()
	if w.tick%playerSwapTicks == 1 {
		w.swapPlayers(lvl)
	}
	if w.tick%hudReloadTicks == 0 {
		if err := w.reloadHUD(); err != nil {
			return err
		}
	}

	w.c.CheckGC()
	return nil
}

func (w *World) spawn() gc.Handle {
	lvl := w.Level()
	h, a := gc.Create[Actor](w.c)
	w.c.Store(h, &a.Level, w.level)
	a.Health = 50 + w.rng.Intn(50)
	a.Tags = make(map[string]gc.Handle, len(tagNames))
	for k := 0; k < 2; k++ {
		w.giveItem(h, a, k)
	}

	lvl.Actors = append(lvl.Actors, h)
	lvl.Population++
	w.c.WriteBarrier(w.level, h)
	return h
}

func (w *World) giveItem(h gc.Handle, a *Actor, slot int) {
	ih, it := gc.Create[Item](w.c)
	it.Amount = 1 + w.rng.Intn(9)
	w.c.Store(ih, &it.Owner, h)
	w.c.Store(h, &a.Inventory[slot], ih)
}

func (w *World) think(lvl *Level) {
	for _, h := range lvl.Actors {
		a := gc.Get[Actor](w.c, h)
		if a == nil {
			continue
		}
		// Actors sit out the tick they were spawned in.
		if f, _ := w.c.Flags(h); f.Has(gc.FlagJustSpawned) {
			if err := w.c.ClearFlags(h, gc.FlagJustSpawned); err != nil {
				w.log.Warn("tick %d: %v", w.tick, err)
			}
			continue
		}
		a.Tics++
		if t := a.Target.Get(w.c); t != nil {
			t.Health--
		}
	}
	for i := range w.players {
		if p := gc.Get[Actor](w.c, w.Player(i)); p != nil {
			p.Health++
		}
	}
}

// kill drops roughly KillPercent of the actors from the level. Half of them
// are destroyed explicitly, the rest are left for the collector.
func (w *World) kill(lvl *Level) error {
	if w.cfg.KillPercent <= 0 {
		return nil
	}
	for i := len(lvl.Actors) - 1; i >= 0; i-- {
		if w.rng.Intn(100) >= w.cfg.KillPercent {
			continue
		}
		h := lvl.Actors[i]
		last := len(lvl.Actors) - 1
		lvl.Actors[i] = lvl.Actors[last]
		lvl.Actors[last] = gc.Nil
		lvl.Actors = lvl.Actors[:last]

		if w.rng.Intn(2) == 0 {
			if err := w.c.Destroy(h); err != nil {
				return fmt.Errorf("tick %d: destroy actor: %w", w.tick, err)
			}
		}
	}
	return nil
}

func (w *World) pick(lvl *Level) (gc.Handle, *Actor) {
	h := lvl.Actors[w.rng.Intn(len(lvl.Actors))]
	return h, gc.Get[Actor](w.c, h)
}

func (w *World) relink(lvl *Level) error {
	h, a := w.pick(lvl)
	if a == nil {
		return fmt.Errorf("tick %d: level holds dead actor %s", w.tick, h)
	}
	other, _ := w.pick(lvl)

	switch w.rng.Intn(7) {
	case 0:
		a.Target.Set(w.c, h, other)
	case 1:
		tag := tagNames[w.rng.Intn(len(tagNames))]
		a.Tags[tag] = other
		w.c.WriteBarrier(h, other)
	case 2:
		w.c.Store(h, &a.Master, other)
	case 3:
		w.giveItem(h, a, w.rng.Intn(InventorySlots))
	case 4:
		slot := w.rng.Intn(InventorySlots)
		if it := a.Inventory[slot]; it != gc.Nil {
			a.Inventory[slot] = gc.Nil
			if err := w.c.Release(it); err != nil {
				return fmt.Errorf("tick %d: consume item: %w", w.tick, err)
			}
		}
	case 5:
		wh, wd := gc.Create[Widget](w.c)
		wd.Label = fmt.Sprintf("bar-%d", w.tick)
		a.HUD = append(a.HUD, HUDEntry{Widget: wh, Slot: len(a.HUD)})
		w.c.WriteBarrier(h, wh)
		if len(a.HUD) > 3 {
			a.HUD = append(a.HUD[:0], a.HUD[1:]...)
		}
	case 6:
		a.Target.Clear()
		delete(a.Tags, tagNames[w.rng.Intn(len(tagNames))])
		a.Master = gc.Nil
	}
	return nil
}

func (w *World) swapPlayers(lvl *Level) {
	if len(lvl.Actors) == 0 {
		return
	}
	i := w.rng.Intn(MaxPlayers)
	h, _ := w.pick(lvl)
	w.players[i] = h
	w.c.WriteBarrierRoot(h)
}

// updateHUD replaces one random widget of the HUD tree.
func (w *World) updateHUD() {
	root := gc.Get[Widget](w.c, w.hud)
	if root == nil || len(root.Children) == 0 {
		return
	}
	j := w.rng.Intn(len(root.Children))
	wh, wd := gc.Create[Widget](w.c)
	wd.Label = fmt.Sprintf("widget-%d", w.tick)
	w.c.Store(wh, &wd.Parent, w.hud)
	w.c.Store(w.hud, &root.Children[j], wh)
}

// reloadHUD builds a fresh HUD tree, pins it and unpins the old one.
func (w *World) reloadHUD() error {
	rh, root := gc.Create[Widget](w.c)
	root.Label = "hud"
	for i := 0; i < w.cfg.Widgets; i++ {
		ch, cw := gc.Create[Widget](w.c)
		cw.Label = fmt.Sprintf("widget-%d", i)
		w.c.Store(ch, &cw.Parent, rh)
		root.Children = append(root.Children, ch)
		w.c.WriteBarrier(rh, ch)
	}
	if err := w.c.AddSoftRoot(rh); err != nil {
		return fmt.Errorf("pin hud: %w", err)
	}
	if w.hud != gc.Nil {
		w.c.DelSoftRoot(w.hud)
	}
	if lvl := w.Level(); lvl != nil {
		w.c.Store(w.level, &lvl.HUD, rh)
	}
	w.hud = rh
	w.log.Debug("hud reloaded at tick %d", w.tick)
	return nil
}
