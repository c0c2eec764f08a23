package gc

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"unsafe"

	apperrors "github.com/engine-gc/pkg/errors"
)

// RefKind says how the marker reads a reference slot.
type RefKind uint8

const (
	// RefHandle is a Handle field.
	RefHandle RefKind = iota
	// RefTracked is a Tracked[T] field.
	RefTracked
	// RefSlice is a slice of Handle or Tracked[T].
	RefSlice
	// RefStructSlice is a slice of structs that themselves hold references.
	RefStructSlice
	// RefMap is a map whose values are Handle or Tracked[T].
	RefMap
)

// String returns the kind name.
func (k RefKind) String() string {
	switch k {
	case RefHandle:
		return "handle"
	case RefTracked:
		return "tracked"
	case RefSlice:
		return "slice"
	case RefStructSlice:
		return "struct_slice"
	case RefMap:
		return "map"
	default:
		return "unknown"
	}
}

// RefField is one entry of a flattened reference table.
type RefField struct {
	Offset uintptr
	Kind   RefKind
	// Stride is the element size for RefStructSlice.
	Stride uintptr
	// Elem is the element's own table for RefStructSlice.
	Elem []RefField
	// Type is the Go type of slice and map fields.
	Type reflect.Type
	// Path is the dotted field path, for diagnostics.
	Path string
}

var (
	handleType  = reflect.TypeOf(Nil)
	trackedType = reflect.TypeOf((*trackedRef)(nil)).Elem()
)

// trackedRef is implemented by every Tracked[T] instantiation.
type trackedRef interface {
	trackedHandle() *Handle
}

func isRefWord(t reflect.Type) (RefKind, bool) {
	if t == handleType {
		return RefHandle, true
	}
	if t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(trackedType) {
		return RefTracked, true
	}
	return 0, false
}

// ClassDescriptor describes one registered Go type.
type ClassDescriptor struct {
	name        string
	typ         reflect.Type
	parent      *ClassDescriptor
	parentAt    uintptr
	size        uintptr
	once        sync.Once
	refs        []RefField
	err         error
	noRefs      bool
	destroyable bool
}

// Name returns the registered class name.
func (d *ClassDescriptor) Name() string { return d.name }

// Type returns the described Go type.
func (d *ClassDescriptor) Type() reflect.Type { return d.typ }

// Parent returns the parent descriptor, or nil for a base class.
func (d *ClassDescriptor) Parent() *ClassDescriptor { return d.parent }

// Size returns the instance size in bytes.
func (d *ClassDescriptor) Size() uintptr { return d.size }

// IsDescendantOf reports whether d is ancestor or one of its descendants.
func (d *ClassDescriptor) IsDescendantOf(ancestor *ClassDescriptor) bool {
	for c := d; c != nil; c = c.parent {
		if c == ancestor {
			return true
		}
	}
	return false
}

// Refs returns the flattened reference table, building it on first use. The
// table covers the class's own fields and every embedded ancestor's.
func (d *ClassDescriptor) Refs() ([]RefField, error) {
	d.once.Do(d.build)
	return d.refs, d.err
}

// NoRefs reports whether instances hold no references at all.
func (d *ClassDescriptor) NoRefs() bool {
	d.once.Do(d.build)
	return d.noRefs
}

func (d *ClassDescriptor) build() {
	var refs []RefField
	if err := flatten(d.typ, 0, d.name, &refs, map[reflect.Type]bool{}); err != nil {
		d.err = apperrors.Wrap(apperrors.CodeClassError, "class "+d.name, err)
		return
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Offset < refs[j].Offset })
	d.refs = refs
	d.noRefs = len(refs) == 0
}

func flatten(t reflect.Type, base uintptr, path string, out *[]RefField, active map[reflect.Type]bool) error {
	if kind, ok := isRefWord(t); ok {
		*out = append(*out, RefField{Offset: base, Kind: kind, Path: path})
		return nil
	}

	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := flatten(f.Type, base+f.Offset, path+"."+f.Name, out, active); err != nil {
				return err
			}
		}
	case reflect.Array:
		elem := t.Elem()
		if elem.Kind() == reflect.Interface {
			return fmt.Errorf("%s: interface elements are not traced; use Handle or Tracked", path)
		}
		if !holdsRefs(elem) {
			return nil
		}
		for i := 0; i < t.Len(); i++ {
			p := fmt.Sprintf("%s[%d]", path, i)
			if err := flatten(elem, base+uintptr(i)*elem.Size(), p, out, active); err != nil {
				return err
			}
		}
	case reflect.Slice:
		elem := t.Elem()
		if _, ok := isRefWord(elem); ok {
			*out = append(*out, RefField{Offset: base, Kind: RefSlice, Type: t, Path: path})
			return nil
		}
		if elem.Kind() == reflect.Interface {
			return fmt.Errorf("%s: interface elements are not traced; use Handle or Tracked", path)
		}
		if !holdsRefs(elem) {
			return nil
		}
		if active[elem] {
			return fmt.Errorf("%s: recursive element type %s", path, elem)
		}
		active[elem] = true
		var sub []RefField
		err := flatten(elem, 0, path+"[]", &sub, active)
		delete(active, elem)
		if err != nil {
			return err
		}
		*out = append(*out, RefField{
			Offset: base,
			Kind:   RefStructSlice,
			Stride: elem.Size(),
			Elem:   sub,
			Type:   t,
			Path:   path,
		})
	case reflect.Map:
		if _, ok := isRefWord(t.Elem()); ok {
			*out = append(*out, RefField{Offset: base, Kind: RefMap, Type: t, Path: path})
			return nil
		}
		if t.Elem().Kind() == reflect.Interface || holdsRefs(t.Elem()) || holdsRefs(t.Key()) {
			return fmt.Errorf("%s: map values must be Handle or Tracked", path)
		}
	case reflect.Interface:
		return fmt.Errorf("%s: interface fields are not traced; use Handle or Tracked", path)
	case reflect.Pointer:
		if holdsRefs(t.Elem()) {
			return fmt.Errorf("%s: references behind pointers are not traced", path)
		}
	}
	return nil
}

// holdsRefs reports whether values of t contain reference slots inline.
func holdsRefs(t reflect.Type) bool {
	return holdsRefsSeen(t, map[reflect.Type]bool{})
}

func holdsRefsSeen(t reflect.Type, seen map[reflect.Type]bool) bool {
	if _, ok := isRefWord(t); ok {
		return true
	}
	if seen[t] {
		return false
	}
	seen[t] = true
	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if holdsRefsSeen(t.Field(i).Type, seen) {
				return true
			}
		}
	case reflect.Array, reflect.Slice, reflect.Pointer:
		return holdsRefsSeen(t.Elem(), seen)
	case reflect.Map:
		return holdsRefsSeen(t.Key(), seen) || holdsRefsSeen(t.Elem(), seen)
	}
	return false
}

// Validate checks the reference table: offsets inside the instance and word
// aligned, and every ancestor slot present at its embedded position.
func (d *ClassDescriptor) Validate() error {
	refs, err := d.Refs()
	if err != nil {
		return err
	}
	word := unsafe.Sizeof(uintptr(0))
	for _, rf := range refs {
		if rf.Offset >= d.size && d.size > 0 {
			return apperrors.Newf(apperrors.CodeClassError, "class %s: %s offset %d outside instance of %d bytes", d.name, rf.Path, rf.Offset, d.size)
		}
		if rf.Offset%word != 0 {
			return apperrors.Newf(apperrors.CodeClassError, "class %s: %s offset %d not word aligned", d.name, rf.Path, rf.Offset)
		}
	}
	if d.parent == nil {
		return nil
	}
	parentRefs, err := d.parent.Refs()
	if err != nil {
		return err
	}
	have := make(map[uintptr]RefKind, len(refs))
	for _, rf := range refs {
		have[rf.Offset] = rf.Kind
	}
	for _, prf := range parentRefs {
		kind, ok := have[prf.Offset+d.parentAt]
		if !ok || kind != prf.Kind {
			return apperrors.Newf(apperrors.CodeClassError, "class %s does not cover parent slot %s", d.name, prf.Path)
		}
	}
	return nil
}

// Registry holds class descriptors. One registry may back any number of
// collectors.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*ClassDescriptor
	byName map[string]*ClassDescriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*ClassDescriptor),
		byName: make(map[string]*ClassDescriptor),
	}
}

// Register describes T under name. T must be a struct; when parent is given,
// T must embed the parent's type. Registering the same type again returns the
// existing descriptor.
func Register[T any](r *Registry, name string, parent *ClassDescriptor) (*ClassDescriptor, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return r.register(t, name, parent)
}

// MustRegister is Register that panics on error. Meant for package-level
// class tables.
func MustRegister[T any](r *Registry, name string, parent *ClassDescriptor) *ClassDescriptor {
	d, err := Register[T](r, name, parent)
	if err != nil {
		panic(err)
	}
	return d
}

func (r *Registry) register(t reflect.Type, name string, parent *ClassDescriptor) (*ClassDescriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, apperrors.Newf(apperrors.CodeClassError, "class %s: %s is not a struct", name, t)
	}
	if name == "" {
		name = t.Name()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.byType[t]; ok {
		if d.name != name || d.parent != parent {
			return nil, apperrors.Newf(apperrors.CodeClassError, "type %s already registered as %s", t, d.name)
		}
		return d, nil
	}
	if d, ok := r.byName[name]; ok {
		return nil, apperrors.Newf(apperrors.CodeClassError, "class name %s already used by %s", name, d.typ)
	}

	d := &ClassDescriptor{
		name:        name,
		typ:         t,
		parent:      parent,
		size:        t.Size(),
		destroyable: reflect.PointerTo(t).Implements(destroyerType),
	}
	if parent != nil {
		at, ok := embeddedAt(t, parent.typ)
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeClassError, "class %s does not embed parent %s", name, parent.name)
		}
		d.parentAt = at
	}

	r.byType[t] = d
	r.byName[name] = d
	return d, nil
}

func embeddedAt(t, parent reflect.Type) (uintptr, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == parent {
			return f.Offset, true
		}
	}
	return 0, false
}

// Lookup finds a descriptor by class name.
func (r *Registry) Lookup(name string) (*ClassDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// ClassOf finds the descriptor registered for t.
func (r *Registry) ClassOf(t reflect.Type) (*ClassDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byType[t]
	return d, ok
}

// Classes returns all descriptors sorted by name.
func (r *Registry) Classes() []*ClassDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ClassDescriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
