// Package snapshot captures the collector's live object list as a heap
// snapshot: every object with its class, colour, flags and outgoing edges,
// plus per-class totals.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/engine-gc/internal/gc"
	"github.com/engine-gc/pkg/compression"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/filter"
	"github.com/engine-gc/pkg/utils"
	"github.com/engine-gc/pkg/writer"
)

// Object is one live object.
type Object struct {
	ID     uint64   `json:"id" yaml:"id"`
	Handle string   `json:"handle" yaml:"handle"`
	Class  string   `json:"class" yaml:"class"`
	Size   uint64   `json:"size" yaml:"size"`
	Color  string   `json:"color" yaml:"color"`
	Flags  string   `json:"flags" yaml:"flags"`
	Refs   []uint64 `json:"refs,omitempty" yaml:"refs,omitempty"`
}

// Class aggregates the objects of one class.
type Class struct {
	Name      string `json:"name" yaml:"name"`
	Parent    string `json:"parent,omitempty" yaml:"parent,omitempty"`
	RefFields int    `json:"ref_fields" yaml:"ref_fields"`
	Count     int    `json:"count" yaml:"count"`
	Bytes     uint64 `json:"bytes" yaml:"bytes"`
}

// Snapshot is the heap at one point in time.
type Snapshot struct {
	TakenAt   time.Time `json:"taken_at" yaml:"taken_at"`
	State     string    `json:"state" yaml:"state"`
	Objects   []Object  `json:"objects" yaml:"objects"`
	Classes   []Class   `json:"classes" yaml:"classes"`
	SoftRoots []uint64  `json:"soft_roots,omitempty" yaml:"soft_roots,omitempty"`
	Edges     int       `json:"edges" yaml:"edges"`
	Bytes     uint64    `json:"bytes" yaml:"bytes"`
	// Skipped counts transient objects left out of the snapshot.
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Options tunes Take.
type Options struct {
	Clock utils.Clock
	// NoEdges leaves out per-object reference lists.
	NoEdges bool
}

// Take walks the collector's object list. Transient objects are skipped, and
// so are edges pointing at them. Condemned objects are not on the list.
func Take(c *gc.Collector, opts Options) *Snapshot {
	clk := opts.Clock
	if clk == nil {
		clk = utils.NewRealClock()
	}
	s := &Snapshot{
		TakenAt: clk.Now(),
		State:   c.State().String(),
	}

	skip := make(map[gc.Handle]bool)
	c.ForEachObject(func(h gc.Handle, _ *gc.ClassDescriptor) bool {
		if f, _ := c.Flags(h); f.Has(gc.FlagTransient) {
			skip[h] = true
		}
		return true
	})
	s.Skipped = len(skip)

	classes := make(map[string]*Class)
	c.ForEachObject(func(h gc.Handle, cls *gc.ClassDescriptor) bool {
		if skip[h] {
			return true
		}
		obj := Object{
			ID:     uint64(h),
			Handle: h.String(),
			Class:  cls.Name(),
			Size:   uint64(cls.Size()),
		}
		if col, ok := c.ColorOf(h); ok {
			obj.Color = col.String()
		}
		if f, ok := c.Flags(h); ok {
			obj.Flags = f.String()
		}
		for _, r := range c.References(h) {
			if skip[r] {
				continue
			}
			s.Edges++
			if !opts.NoEdges {
				obj.Refs = append(obj.Refs, uint64(r))
			}
		}
		s.Objects = append(s.Objects, obj)
		s.Bytes += obj.Size

		agg, ok := classes[cls.Name()]
		if !ok {
			agg = &Class{Name: cls.Name()}
			if p := cls.Parent(); p != nil {
				agg.Parent = p.Name()
			}
			if refs, err := cls.Refs(); err == nil {
				agg.RefFields = len(refs)
			}
			classes[cls.Name()] = agg
		}
		agg.Count++
		agg.Bytes += obj.Size
		return true
	})

	for _, agg := range classes {
		s.Classes = append(s.Classes, *agg)
	}
	sort.Slice(s.Classes, func(i, j int) bool {
		if s.Classes[i].Bytes != s.Classes[j].Bytes {
			return s.Classes[i].Bytes > s.Classes[j].Bytes
		}
		return s.Classes[i].Name < s.Classes[j].Name
	})
	for _, h := range c.SoftRoots() {
		s.SoftRoots = append(s.SoftRoots, uint64(h))
	}
	return s
}

// Class returns the aggregate for name.
func (s *Snapshot) Class(name string) (Class, bool) {
	for _, c := range s.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return Class{}, false
}

// Lineage returns name followed by its known ancestors.
func (s *Snapshot) Lineage(name string) []string {
	parents := make(map[string]string, len(s.Classes))
	for _, c := range s.Classes {
		parents[c.Name] = c.Parent
	}
	lineage := []string{name}
	for p := parents[name]; p != "" && len(lineage) <= len(parents); p = parents[p] {
		lineage = append(lineage, p)
	}
	return lineage
}

// Filter returns a copy holding only objects whose class, or one of its
// ancestors, passes f. Edges and soft roots into dropped objects go too.
func (s *Snapshot) Filter(f *filter.ClassFilter) *Snapshot {
	out := &Snapshot{TakenAt: s.TakenAt, State: s.State, Skipped: s.Skipped}

	keep := make(map[string]bool, len(s.Classes))
	for _, c := range s.Classes {
		if f.MatchLineage(s.Lineage(c.Name)) {
			keep[c.Name] = true
			out.Classes = append(out.Classes, c)
		}
	}
	ids := make(map[uint64]bool)
	for _, o := range s.Objects {
		if keep[o.Class] {
			ids[o.ID] = true
		}
	}
	for _, o := range s.Objects {
		if !ids[o.ID] {
			continue
		}
		refs := make([]uint64, 0, len(o.Refs))
		for _, r := range o.Refs {
			if ids[r] {
				refs = append(refs, r)
			}
		}
		if len(refs) == 0 {
			refs = nil
		}
		o.Refs = refs
		out.Edges += len(refs)
		out.Bytes += o.Size
		out.Objects = append(out.Objects, o)
	}
	for _, r := range s.SoftRoots {
		if ids[r] {
			out.SoftRoots = append(out.SoftRoots, r)
		}
	}
	return out
}

// Save writes the snapshot, choosing the format from path: .json or .yaml,
// optionally followed by .gz or .zst.
func (s *Snapshot) Save(path string) error {
	w, err := writer.ForPath[*Snapshot](path, false)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSnapshotError, "choose snapshot format", err)
	}
	if err := w.WriteToFile(s, path); err != nil {
		return apperrors.Wrap(apperrors.CodeSnapshotError, "write snapshot "+path, err)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSnapshotError, "read snapshot", err)
	}
	data, err := compression.AutoDecompress(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSnapshotError, "decompress snapshot", err)
	}

	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(strings.TrimSuffix(name, compression.TypeGzip.Extension()), compression.TypeZstd.Extension())

	s := &Snapshot{}
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	default:
		err = json.Unmarshal(data, s)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSnapshotError, "decode snapshot", err)
	}
	return s, nil
}
