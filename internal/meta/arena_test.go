package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindEqual(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		a, b Value
		want bool
	}{
		{"same color", KindColorSpace, ColorRGB, ColorRGB, true},
		{"different color", KindColorSpace, ColorRGB, ColorLAB, false},
		{"wrong type", KindColorSpace, ColorRGB, 1, false},
		{"dims equal", KindImageSize, Dim{10, 20, 2}, Dim{10, 20, 2}, true},
		{"dims differ", KindImageSize, Dim{10, 20, 2}, Dim{20, 10, 2}, false},
		{"nil never equal", KindInt, nil, 1, false},
		{"float", KindFloat, 1.5, 1.5, true},
		{"string", KindString, "a", "b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Equal(tt.a, tt.b))
		})
	}
}

func TestKindIntersects(t *testing.T) {
	k := KindColorSpace
	assert.True(t, k.Intersects([]Value{ColorLAB, ColorRGB}, []Value{ColorRGB}))
	assert.False(t, k.Intersects([]Value{ColorLAB, ColorRGB}, []Value{ColorXYZ}))
	assert.False(t, k.Intersects(nil, []Value{ColorXYZ}))
}

func TestArenaAllocAndFree(t *testing.T) {
	a := NewArena()
	root := a.New(KindBundle, 1)
	ch := a.NewChannel(1, 1)
	a.Attach(root, ch)

	require.Equal(t, 2, a.Len())
	assert.Equal(t, []ID{ch}, a.Node(root).Children)
	assert.Equal(t, 1, a.Node(ch).Value)
	assert.Nil(t, a.Node(None))

	a.Free(ch)
	assert.Nil(t, a.Node(ch))
	assert.Equal(t, 1, a.Len())

	// freed slots are recycled
	again := a.New(KindInt, 2)
	assert.Equal(t, ch, again)
	assert.Equal(t, 2, a.Len())

	// double free is ignored
	a.Free(None, root, root)
	assert.Equal(t, 1, a.Len())
}

func TestArenaCopyIsShallow(t *testing.T) {
	a := NewArena()
	root := a.NewSelect(KindColorSpace, 3, ColorRGB, ColorLAB)
	child := a.New(KindChannel, 3)
	a.Attach(root, child)
	a.SetReplacedBy(root, child)

	cp := a.Copy(root)
	n := a.Node(cp)
	assert.NotEqual(t, root, cp)
	assert.Equal(t, KindColorSpace, n.Kind)
	assert.Equal(t, 3, n.Owner)
	assert.Equal(t, []Value{ColorRGB, ColorLAB}, n.Allowed)
	assert.Empty(t, n.Children)
	assert.Equal(t, None, n.ReplacedBy)

	// candidate sets are not aliased
	n.Allowed[0] = ColorXYZ
	assert.Equal(t, ColorRGB, a.Node(root).Allowed[0])
}

func TestSetDependsOnRejectsCycles(t *testing.T) {
	a := NewArena()
	tune := a.NewTune(KindBitDepth, 1, BitDepthU16, BitDepthU8)
	x := a.New(KindBitDepth, 1)
	y := a.New(KindBitDepth, 1)

	require.NoError(t, a.SetDependsOn(x, tune))
	require.NoError(t, a.SetDependsOn(y, x))
	require.NoError(t, a.SetDependsOn(tune, tune))

	err := a.SetDependsOn(tune, y)
	require.ErrorIs(t, err, ErrDependencyCycle)
	assert.Equal(t, tune, a.Node(tune).DependsOn)
}

func TestSetDependsOnMissingNodes(t *testing.T) {
	a := NewArena()
	tune := a.NewTune(KindBitDepth, 1, BitDepthU16, BitDepthU8)
	x := a.New(KindBitDepth, 1)
	gone := a.New(KindBitDepth, 1)
	a.Free(gone)

	assert.ErrorIs(t, a.SetDependsOn(x, gone), ErrNoNode)
	assert.ErrorIs(t, a.SetDependsOn(x, ID(1000)), ErrNoNode)
	assert.ErrorIs(t, a.SetDependsOn(gone, tune), ErrNoNode)
	assert.Equal(t, None, a.Node(x).DependsOn)
}

func TestResolvedValueAndRecalc(t *testing.T) {
	a := NewArena()
	tune := a.NewTune(KindBitDepth, 1, BitDepthU16, BitDepthU8)
	plain := a.New(KindBitDepth, 1)
	require.NoError(t, a.SetDependsOn(plain, tune))

	doubled := a.New(KindInt, 1)
	require.NoError(t, a.SetDependsOn(doubled, tune))
	a.Node(doubled).Derive = func(v Value) Value { return int(v.(BitDepth)) * 2 }

	assert.Equal(t, BitDepthU8, a.ResolvedValue(plain, BitDepthU8))
	assert.Equal(t, 32, a.ResolvedValue(doubled, BitDepthU16))

	a.Node(tune).Value = BitDepthU8
	a.Recalc(plain)
	a.Recalc(doubled)
	assert.Equal(t, BitDepthU8, a.Node(plain).Value)
	assert.Equal(t, 16, a.Node(doubled).Value)

	root := a.New(KindBundle, 1)
	a.Attach(root, plain)
	a.Attach(root, doubled)
	a.UndoTunings(root)
	assert.Nil(t, a.Node(plain).Value)
	assert.Nil(t, a.Node(doubled).Value)
	assert.Nil(t, a.Node(tune).Value)
}

func TestWalkVisitsSharedNodesOnce(t *testing.T) {
	a := NewArena()
	root := a.New(KindBundle, 1)
	left := a.New(KindBundle, 1)
	shared := a.NewValue(KindBitDepth, 1, BitDepthU8)
	a.Attach(root, left)
	a.Attach(root, shared)
	a.Attach(left, shared)

	assert.Equal(t, []ID{root, left, shared}, a.Collect(root))
}

func TestFormat(t *testing.T) {
	a := NewArena()
	root := a.New(KindBundle, 1)
	cs := a.NewSelect(KindColorSpace, 1, ColorRGB, ColorLAB)
	a.Node(cs).Name = "space"
	a.Attach(root, cs)
	a.Attach(root, a.NewValue(KindBitDepth, 1, BitDepthU16))

	assert.Equal(t, "bundle\n  colorspace[space]{RGB,LAB}\n  bitdepth=U16\n", a.Format(root))
}
