package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-pipeline/internal/match"
	"github.com/ironsheep/image-pipeline/internal/meta"
)

type fixture struct {
	arena *meta.Arena
	res   *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	a := meta.NewArena()
	return &fixture{arena: a, res: NewResolver(a, match.New(a, nil), nil)}
}

// dependent allocates a tuning with the given candidates and one node depending on it.
func (f *fixture) dependent(t *testing.T, kind meta.Kind, owner int, values ...meta.Value) (tune, dep meta.ID) {
	t.Helper()
	tune = f.arena.NewTune(kind, owner, values...)
	dep = f.arena.New(kind, owner)
	require.NoError(t, f.arena.SetDependsOn(dep, tune))
	return tune, dep
}

// assertSound checks that every survivor on either side of every link has a
// compatible survivor on the other side.
func assertSound(t *testing.T, f *fixture) {
	t.Helper()
	for _, rs := range f.res.Restrictions() {
		for _, l := range rs.links {
			for i, v := range l.srcR.values {
				if l.srcR.alive[i] {
					assert.True(t, l.witnessedBySink(f.arena, v), "source survivor %v unwitnessed", v)
				}
			}
			for j, v := range l.sinkR.values {
				if l.sinkR.alive[j] {
					assert.True(t, l.witnessedBySource(f.arena, v), "sink survivor %v unwitnessed", v)
				}
			}
		}
	}
}

func TestRestrictWithoutDependencies(t *testing.T) {
	f := newFixture(t)
	src := f.arena.NewValue(meta.KindBitDepth, 1, meta.BitDepthU8)
	sink := f.arena.NewValue(meta.KindBitDepth, 2, meta.BitDepthU8)
	require.NoError(t, f.res.Restrict(src, sink))
	assert.Empty(t, f.res.Restrictions())
}

func TestRestrictOneSidedSource(t *testing.T) {
	f := newFixture(t)
	tune, dep := f.dependent(t, meta.KindBitDepth, 1, meta.BitDepthU16, meta.BitDepthU8)
	sink := f.arena.NewValue(meta.KindBitDepth, 2, meta.BitDepthU8)

	require.NoError(t, f.res.Restrict(dep, sink))
	rs := f.res.Restriction(tune)
	require.NotNil(t, rs)
	assert.Equal(t, []meta.Value{meta.BitDepthU8}, rs.Survivors())
	assert.Equal(t, meta.BitDepthU8, f.arena.Node(tune).Value)
}

func TestRestrictOneSidedSinkAgainstSelectable(t *testing.T) {
	f := newFixture(t)
	src := f.arena.NewSelect(meta.KindColorSpace, 1, meta.ColorRGB, meta.ColorXYZ)
	tune, dep := f.dependent(t, meta.KindColorSpace, 2, meta.ColorLAB, meta.ColorXYZ, meta.ColorRGB)

	require.NoError(t, f.res.Restrict(src, dep))
	rs := f.res.Restriction(tune)
	assert.Equal(t, []meta.Value{meta.ColorXYZ, meta.ColorRGB}, rs.Survivors())
	assert.Nil(t, f.arena.Node(tune).Value)
}

func TestRestrictDerivedValues(t *testing.T) {
	f := newFixture(t)
	tune, dep := f.dependent(t, meta.KindInt, 1, 1, 2, 4)
	f.arena.Node(dep).Derive = func(v meta.Value) meta.Value { return v.(int) * 256 }
	sink := f.arena.NewValue(meta.KindInt, 2, 512)

	require.NoError(t, f.res.Restrict(dep, sink))
	assert.Equal(t, 2, f.arena.Node(tune).Value)
}

func TestColorSpaceTuningsPinToCommonValue(t *testing.T) {
	f := newFixture(t)
	t1, d1 := f.dependent(t, meta.KindColorSpace, 1, meta.ColorLAB, meta.ColorRGB)
	t2, d2 := f.dependent(t, meta.KindColorSpace, 2, meta.ColorRGB)

	require.NoError(t, f.res.Restrict(d1, d2))
	assert.Equal(t, meta.ColorRGB, f.arena.Node(t1).Value)
	assert.Equal(t, meta.ColorRGB, f.arena.Node(t2).Value)
	assertSound(t, f)
}

func TestColorSpaceTuningsInfeasible(t *testing.T) {
	f := newFixture(t)
	_, d1 := f.dependent(t, meta.KindColorSpace, 1, meta.ColorLAB, meta.ColorRGB)
	_, d2 := f.dependent(t, meta.KindColorSpace, 2, meta.ColorXYZ)

	err := f.res.Restrict(d1, d2)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestRemovalCascadesAcrossLinks(t *testing.T) {
	f := newFixture(t)
	ta, a := f.dependent(t, meta.KindInt, 1, 1, 2, 3)
	tb, b1 := f.dependent(t, meta.KindInt, 2, 1, 2, 3)
	b2 := f.arena.New(meta.KindInt, 2)
	require.NoError(t, f.arena.SetDependsOn(b2, tb))
	tc, c := f.dependent(t, meta.KindInt, 3, 2, 3)

	require.NoError(t, f.res.Restrict(a, b1))
	require.NoError(t, f.res.Restrict(b2, c))
	assert.Equal(t, []meta.Value{2, 3}, f.res.Restriction(tb).Survivors())
	assert.Equal(t, []meta.Value{2, 3}, f.res.Restriction(ta).Survivors())
	assertSound(t, f)

	fixed := f.arena.NewValue(meta.KindInt, 4, 3)
	c2 := f.arena.New(meta.KindInt, 3)
	require.NoError(t, f.arena.SetDependsOn(c2, tc))
	require.NoError(t, f.res.Restrict(c2, fixed))

	for _, tune := range []meta.ID{ta, tb, tc} {
		assert.Equal(t, 3, f.arena.Node(tune).Value)
		assert.Equal(t, 1, f.res.Restriction(tune).Remaining())
	}
	assertSound(t, f)
}

func TestRemoveLastValueIsInfeasible(t *testing.T) {
	f := newFixture(t)
	tune, dep := f.dependent(t, meta.KindInt, 1, 1, 2)
	sink := f.arena.NewSelect(meta.KindInt, 2, 1, 2)
	require.NoError(t, f.res.Restrict(dep, sink))

	rs := f.res.Restriction(tune)
	require.NoError(t, rs.Remove(1))
	require.NoError(t, rs.Remove(1))
	assert.Equal(t, 1, f.arena.Node(tune).Value)
	assert.ErrorIs(t, rs.Remove(0), ErrInfeasible)
}

func TestFixKeepsFirstSurvivor(t *testing.T) {
	f := newFixture(t)
	t1, d1 := f.dependent(t, meta.KindBitDepth, 1, meta.BitDepthU16, meta.BitDepthU8)
	t2, d2 := f.dependent(t, meta.KindBitDepth, 2, meta.BitDepthU8, meta.BitDepthU16)

	require.NoError(t, f.res.Restrict(d1, d2))
	assert.Equal(t, 2, f.res.Restriction(t1).Remaining())
	assert.Nil(t, f.arena.Node(t1).Value)

	require.NoError(t, f.res.Fix())
	assert.Equal(t, meta.BitDepthU16, f.arena.Node(t1).Value)
	assert.Equal(t, meta.BitDepthU16, f.arena.Node(t2).Value)
	assertSound(t, f)
}

func TestResetUnpins(t *testing.T) {
	f := newFixture(t)
	tune, dep := f.dependent(t, meta.KindBitDepth, 1, meta.BitDepthU16, meta.BitDepthU8)
	sink := f.arena.NewValue(meta.KindBitDepth, 2, meta.BitDepthU8)
	require.NoError(t, f.res.Restrict(dep, sink))
	require.NotNil(t, f.arena.Node(tune).Value)

	f.res.Reset()
	assert.Nil(t, f.arena.Node(tune).Value)
	assert.Nil(t, f.res.Restriction(tune))
	assert.Empty(t, f.res.Restrictions())
}
