package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/engine-gc/pkg/errors"
)

type thinker struct {
	Next Handle
	Prev Handle
}

type slotRef struct {
	Item  Handle
	Count int
}

type actor struct {
	thinker
	Target Tracked[actor]
	Inv    [2]Handle
	Tags   map[string]Handle
	Slots  []slotRef
	Name   string
}

type notEmbedding struct {
	T thinker
}

type badPointer struct {
	P *thinker
}

type badMap struct {
	M map[string]slotRef
}

type roster struct {
	Members map[string]Tracked[leaf]
}

type badInterface struct {
	Any any
}

type badInterfaceSlice struct {
	Items []any
}

type badInterfaceMap struct {
	Props map[string]any
}

type recNode struct {
	H    Handle
	Kids []recNode
}

type badRecursive struct {
	Root recNode
}

func TestRegister_FlattenedTable(t *testing.T) {
	reg := NewRegistry()
	base := MustRegister[thinker](reg, "thinker", nil)
	cls := MustRegister[actor](reg, "actor", base)

	refs, err := cls.Refs()
	require.NoError(t, err)

	var kinds []RefKind
	var paths []string
	for _, rf := range refs {
		kinds = append(kinds, rf.Kind)
		paths = append(paths, rf.Path)
	}
	assert.Equal(t, []RefKind{RefHandle, RefHandle, RefTracked, RefHandle, RefHandle, RefMap, RefStructSlice}, kinds)
	assert.Equal(t, []string{
		"actor.thinker.Next", "actor.thinker.Prev", "actor.Target",
		"actor.Inv[0]", "actor.Inv[1]", "actor.Tags", "actor.Slots",
	}, paths)

	slots := refs[6]
	require.Len(t, slots.Elem, 1)
	assert.Equal(t, uintptr(0), slots.Elem[0].Offset)
	assert.Equal(t, "actor.Slots[].Item", slots.Elem[0].Path)

	assert.False(t, cls.NoRefs())
	assert.NoError(t, cls.Validate())
	assert.True(t, cls.IsDescendantOf(base))
	assert.False(t, base.IsDescendantOf(cls))
	assert.Same(t, base, cls.Parent())
	assert.Equal(t, "actor", cls.Name())
}

func TestRegister_NoRefs(t *testing.T) {
	reg := NewRegistry()
	cls := MustRegister[leaf](reg, "", nil)
	assert.Equal(t, "leaf", cls.Name())
	assert.True(t, cls.NoRefs())
	refs, err := cls.Refs()
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name     string
		register func(reg *Registry) error
	}{
		{
			name: "not a struct",
			register: func(reg *Registry) error {
				_, err := Register[int](reg, "int", nil)
				return err
			},
		},
		{
			name: "parent not embedded",
			register: func(reg *Registry) error {
				base := MustRegister[thinker](reg, "thinker", nil)
				_, err := Register[notEmbedding](reg, "x", base)
				return err
			},
		},
		{
			name: "name reused",
			register: func(reg *Registry) error {
				MustRegister[thinker](reg, "thing", nil)
				_, err := Register[leaf](reg, "thing", nil)
				return err
			},
		},
		{
			name: "type registered under another name",
			register: func(reg *Registry) error {
				MustRegister[thinker](reg, "thinker", nil)
				_, err := Register[thinker](reg, "other", nil)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.register(NewRegistry())
			require.Error(t, err)
			assert.True(t, apperrors.IsClassError(err))
		})
	}
}

func TestRegister_Idempotent(t *testing.T) {
	reg := NewRegistry()
	a := MustRegister[thinker](reg, "thinker", nil)
	b := MustRegister[thinker](reg, "thinker", nil)
	assert.Same(t, a, b)

	found, ok := reg.Lookup("thinker")
	require.True(t, ok)
	assert.Same(t, a, found)
	assert.Len(t, reg.Classes(), 1)
}

func TestRefs_UnsupportedLayouts(t *testing.T) {
	tests := []struct {
		name string
		cls  func(reg *Registry) *ClassDescriptor
	}{
		{"pointer to refs", func(reg *Registry) *ClassDescriptor { return MustRegister[badPointer](reg, "p", nil) }},
		{"map of structs", func(reg *Registry) *ClassDescriptor { return MustRegister[badMap](reg, "m", nil) }},
		{"recursive slice", func(reg *Registry) *ClassDescriptor { return MustRegister[badRecursive](reg, "r", nil) }},
		{"interface field", func(reg *Registry) *ClassDescriptor { return MustRegister[badInterface](reg, "i", nil) }},
		{"slice of interfaces", func(reg *Registry) *ClassDescriptor { return MustRegister[badInterfaceSlice](reg, "is", nil) }},
		{"map of interfaces", func(reg *Registry) *ClassDescriptor { return MustRegister[badInterfaceMap](reg, "im", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := tt.cls(NewRegistry())
			_, err := cls.Refs()
			require.Error(t, err)
			assert.True(t, apperrors.IsClassError(err))
		})
	}
}

func TestMarking_ThroughAllRefKinds(t *testing.T) {
	reg := NewRegistry()
	base := MustRegister[thinker](reg, "thinker", nil)
	MustRegister[actor](reg, "actor", base)
	MustRegister[leaf](reg, "leaf", nil)
	c := New(reg, debugConfig())

	root, a := Create[actor](c)
	require.NoError(t, c.AddSoftRoot(root))

	next, _ := Create[leaf](c)
	target, _ := Create[actor](c)
	inv, _ := Create[leaf](c)
	tag, _ := Create[leaf](c)
	item, _ := Create[leaf](c)
	garbage, _ := Create[leaf](c)

	a.Next = next
	a.Target.Set(c, root, target)
	a.Inv[1] = inv
	a.Tags = map[string]Handle{"x": tag, "none": Nil}
	a.Slots = []slotRef{{Count: 1}, {Item: item, Count: 2}}

	c.FullGC()
	for _, h := range []Handle{root, next, target, inv, tag, item} {
		assert.True(t, c.Valid(h), "%s", h)
	}
	assert.False(t, c.Valid(garbage))

	require.NoError(t, c.Destroy(tag))
	require.NoError(t, c.Destroy(item))
	c.FullGC()
	assert.Equal(t, Nil, a.Tags["x"])
	assert.Equal(t, Nil, a.Slots[1].Item)
	assert.Equal(t, 2, a.Slots[1].Count)
	assert.Equal(t, []Handle{next, target, inv}, c.References(root))
}

func TestMarking_TrackedMapValues(t *testing.T) {
	reg := NewRegistry()
	cls := MustRegister[roster](reg, "roster", nil)
	MustRegister[leaf](reg, "leaf", nil)
	refs, err := cls.Refs()
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, RefMap, refs[0].Kind)

	c := New(reg, debugConfig())
	root, r := Create[roster](c)
	require.NoError(t, c.AddSoftRoot(root))
	alice, al := Create[leaf](c)
	al.V = 7
	bob, _ := Create[leaf](c)
	r.Members = map[string]Tracked[leaf]{"alice": Track[leaf](alice), "bob": Track[leaf](bob)}
	c.WriteBarrier(root, alice)
	c.WriteBarrier(root, bob)

	c.FullGC()
	require.True(t, c.Valid(alice))
	require.True(t, c.Valid(bob))
	m := r.Members["alice"]
	require.NotNil(t, m.Get(c))
	assert.Equal(t, 7, m.Get(c).V)
	_, err = c.Verify()
	require.NoError(t, err)

	require.NoError(t, c.Destroy(alice))
	c.FullGC()
	assert.False(t, c.Valid(alice))
	m = r.Members["alice"]
	assert.Nil(t, m.Get(c))
	assert.Equal(t, Nil, m.Raw())
	m = r.Members["bob"]
	assert.Equal(t, bob, m.Raw())
	assert.True(t, c.Valid(bob))
}
