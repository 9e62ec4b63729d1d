package cache

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTileBytes = 16 * 16

// newTestTile returns a 16x16 single-channel tile at (x, y).
func newTestTile(t *testing.T, stage string, x, y int) *Tile {
	t.Helper()
	area := Area{X: x * 16, Y: y * 16, Width: 16, Height: 16}
	tile := NewTile(Key(42, area), area, stage, 1)
	tile.AllocChannels(1, 1)
	for i := range tile.Channels[0].Data {
		tile.Channels[0].Data[i] = byte(x + y + i)
	}
	return tile
}

func newTestCache(t *testing.T, tiles int, strategy Strategy) *Cache {
	t.Helper()
	c, err := New(Options{MemoryLimit: int64(tiles * testTileBytes), Strategy: strategy, Seed: 7})
	require.NoError(t, err)
	return c
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = New(Options{MemoryMB: -1})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = New(Options{MemoryMB: 1, Strategy: 7})
	assert.ErrorIs(t, err, ErrInvalidStrategy)

	c, err := New(Options{MemoryMB: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(4<<20), c.Limit())
	assert.Equal(t, 128, c.Stats().Slots)

	c, err = New(Options{MemoryLimit: 1000})
	require.NoError(t, err)
	assert.Equal(t, minSlots, c.Stats().Slots)
}

func TestLRUEvictsOlderTile(t *testing.T) {
	c := newTestCache(t, 1, SelectNapx|MetricRecency)

	a := newTestTile(t, "contrast", 0, 0)
	c.Insert(a).Release()
	b := newTestTile(t, "contrast", 1, 0)
	c.Insert(b).Release()

	assert.Nil(t, c.Get(a.Key))
	got := c.Get(b.Key)
	require.NotNil(t, got)
	got.Release()
	assert.Same(t, b, got)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestRecencyPrefersLeastRecentlyUsed(t *testing.T) {
	c := newTestCache(t, 3, SelectNapx|MetricRecency)
	a := newTestTile(t, "s", 0, 0)
	b := newTestTile(t, "s", 1, 0)
	cc := newTestTile(t, "s", 2, 0)
	c.Insert(a).Release()
	c.Insert(b).Release()
	c.Insert(cc).Release()

	assert.Nil(t, c.Get(a.Key), "oldest tile evicted first")

	c.Get(b.Key).Release()
	d := newTestTile(t, "s", 3, 0)
	c.Insert(d).Release()

	assert.Nil(t, c.Get(cc.Key), "tile not touched since insertion evicted")
	for _, k := range []uint64{b.Key, d.Key} {
		got := c.Get(k)
		require.NotNil(t, got)
		got.Release()
	}
}

func TestZeroScoresEvictOldestGeneration(t *testing.T) {
	c := newTestCache(t, 4, SelectNapx|MetricTime)
	var tiles []*Tile
	for i := 0; i < 4; i++ {
		tile := newTestTile(t, "s", i, 0)
		tiles = append(tiles, tile)
		c.Insert(tile).Release()
	}
	assert.Nil(t, c.Get(tiles[0].Key))
	for _, tile := range tiles[1:] {
		got := c.Get(tile.Key)
		require.NotNil(t, got)
		got.Release()
	}
}

func TestWantedTilesSurvive(t *testing.T) {
	c := newTestCache(t, 1, SelectRandom)
	a := newTestTile(t, "s", 0, 0)
	held := c.Insert(a)

	b := newTestTile(t, "s", 1, 0)
	c.Insert(b).Release()

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(1), c.Stats().EvictionFailures)

	held.Release()
	d := newTestTile(t, "s", 2, 0)
	c.Insert(d).Release()
	assert.Equal(t, 1, c.Len())
	assert.Nil(t, c.Get(a.Key))
	assert.Nil(t, c.Get(b.Key))
}

func TestSlotOccupancyStaysBelowHalf(t *testing.T) {
	c, err := New(Options{MemoryMB: 64, Slots: 8, Strategy: SelectNapx, Seed: 7})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		c.Insert(newTestTile(t, "s", i, 0)).Release()
		assert.Less(t, c.Len(), 4, "after insert %d", i)
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 8, c.Stats().Slots)
}

func TestCacheCeiling(t *testing.T) {
	for _, strategy := range []Strategy{
		SelectRandom,
		SelectNapx,
		SelectNapx | MetricDist | MetricHitRate,
		SelectProb | MetricRecency,
		SelectProb | MetricDist,
	} {
		t.Run(strategy.String(), func(t *testing.T) {
			c := newTestCache(t, 5, strategy)
			var held []*Tile
			for i := 0; i < 60; i++ {
				tile := newTestTile(t, fmt.Sprintf("stage%d", i%3), i%8, i/8)
				got := c.Insert(tile)
				if i%7 == 0 {
					held = append(held, got)
				} else {
					got.Release()
				}

				stats := c.Stats()
				if stats.Memory["cached"].Current >= c.Limit() {
					for _, other := range c.Tiles() {
						if other != got {
							assert.True(t, other.Wanted(), "unwanted tile kept over the ceiling")
						}
					}
				}
				if i%10 == 9 && len(held) > 0 {
					held[0].Release()
					held = held[1:]
				}
			}
		})
	}
}

func TestGetReturnsInsertedTileUnchanged(t *testing.T) {
	c := newTestCache(t, 64, SelectNapx)
	var last uint64
	keys := make(map[uint64][]byte)
	for i := 0; i < 10; i++ {
		tile := newTestTile(t, "s", i, i)
		keys[tile.Key] = append([]byte(nil), tile.Channels[0].Data...)
		got := c.Insert(tile)
		require.Same(t, tile, got)
		assert.Greater(t, got.Generation(), last)
		last = got.Generation()
		got.Release()
	}
	for key, data := range keys {
		got := c.Get(key)
		require.NotNil(t, got)
		assert.Equal(t, data, got.Channels[0].Data)
		assert.Greater(t, got.Generation(), last)
		last = got.Generation()
		got.Release()
	}
}

func TestInsertDuplicateKeepsResident(t *testing.T) {
	c := newTestCache(t, 8, SelectNapx)
	a := newTestTile(t, "s", 0, 0)
	c.Insert(a).Release()

	dup := newTestTile(t, "s", 0, 0)
	got := c.Insert(dup)
	assert.Same(t, a, got)
	assert.True(t, a.Wanted())
	got.Release()
	assert.Equal(t, 1, c.Len())

	s := c.Stats()
	require.Len(t, s.Stages, 1)
	assert.Equal(t, uint64(2), s.Stages[0].Misses)
	assert.Equal(t, 1, s.Stages[0].Tiles)
}

func TestFlushDestroysEverything(t *testing.T) {
	c := newTestCache(t, 8, SelectNapx)
	held := c.Insert(newTestTile(t, "s", 0, 0))
	c.Insert(newTestTile(t, "s", 1, 0)).Release()

	c.Flush()
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Get(held.Key))
	s := c.Stats()
	assert.Zero(t, s.Memory["cached"].Current)
	assert.Equal(t, int64(2*testTileBytes), s.Memory["cached"].Peak)
}

func TestStatsPerStage(t *testing.T) {
	c := newTestCache(t, 64, SelectNapx)
	a := newTestTile(t, "load", 0, 0)
	a.Time = 3 * time.Millisecond
	c.Insert(a).Release()
	b := newTestTile(t, "gauss", 0, 0)
	b.Time = time.Millisecond
	c.Insert(b).Release()
	c.Get(a.Key).Release()
	c.Get(a.Key).Release()
	assert.Nil(t, c.Get(12345))

	s := c.Stats()
	require.Len(t, s.Stages, 2)
	assert.Equal(t, "gauss", s.Stages[0].Stage)
	load := s.Stages[1]
	assert.Equal(t, uint64(2), load.Hits)
	assert.Equal(t, uint64(1), load.Misses)
	assert.Equal(t, 1, load.Tiles)
	assert.Equal(t, int64(testTileBytes), load.Bytes)
	assert.Equal(t, 3*time.Millisecond, load.Time)
	assert.InDelta(t, 2.0/3.0, load.HitRate(), 1e-9)
}

func TestMemoryCounters(t *testing.T) {
	c := newTestCache(t, 8, SelectNapx)
	buf := c.BufferAlloc(100)
	assert.Len(t, buf, 100)
	c.TrackApp(500)
	c.TrackApp(-200)
	c.Track(MemUncached, 64)
	c.Track(MemCached, 1<<30)
	c.BufferFree(buf)

	m := c.Stats().Memory
	assert.Equal(t, Memory{Current: 0, Peak: 100}, m["buffers"])
	assert.Equal(t, Memory{Current: 300, Peak: 500}, m["app"])
	assert.Equal(t, Memory{Current: 64, Peak: 64}, m["uncached"])
	assert.Equal(t, Memory{}, m["cached"])
}

func TestSetLimit(t *testing.T) {
	c := newTestCache(t, 8, SelectNapx)
	for i := 0; i < 6; i++ {
		c.Insert(newTestTile(t, "s", i, 0)).Release()
	}
	require.Equal(t, 6, c.Len())

	assert.ErrorIs(t, c.SetLimit(0), ErrInvalidLimit)
	require.NoError(t, c.SetLimit(8<<20))
	assert.Equal(t, 256, c.Stats().Slots)

	held := c.Get(newTestTile(t, "s", 2, 0).Key)
	require.NotNil(t, held)
	require.NoError(t, c.SetLimit(2*testTileBytes))
	assert.Equal(t, 1, c.Len(), "shrinking evicts at once")
	again := c.Get(held.Key)
	assert.Same(t, held, again, "wanted tiles survive")
	again.Release()
	held.Release()

	assert.Less(t, c.Stats().Memory["cached"].Current, int64(2*testTileBytes))
	c.Insert(newTestTile(t, "s", 7, 0)).Release()
	assert.Equal(t, 1, c.Len())
}

func TestWeightedPickFallsBack(t *testing.T) {
	c := newTestCache(t, 8, SelectProb)
	a, b := newTestTile(t, "s", 0, 0), newTestTile(t, "s", 1, 0)
	got := c.weightedPick([]*Tile{a, b}, []float64{math.Inf(1), math.Inf(1)}, b)
	assert.Same(t, b, got)

	got = c.weightedPick([]*Tile{a, b}, []float64{0, math.Inf(1)}, b)
	assert.Same(t, a, got)
}

func TestCloseness(t *testing.T) {
	a := Area{X: 0, Y: 0, Width: 16, Height: 16}
	assert.Equal(t, overlapCloseness, closeness(a, a))
	assert.Equal(t, overlapCloseness, closeness(a, Area{X: 8, Y: 8, Width: 16, Height: 16}))
	assert.InDelta(t, 1.0/4.0, closeness(a, Area{X: 20, Y: 0, Width: 16, Height: 16}), 1e-12)
	// scale 1 doubles every coordinate
	assert.InDelta(t, 1.0/8.0, closeness(Area{X: 0, Y: 0, Width: 8, Height: 8, Scale: 1},
		Area{X: 12, Y: 0, Width: 8, Height: 8, Scale: 1}), 1e-12)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
		err  bool
	}{
		{"napx", SelectNapx, false},
		{"random", SelectRandom, false},
		{"prob:dist,time", SelectProb | MetricDist | MetricTime, false},
		{"NAPX:lru, depth", SelectNapx | MetricRecency | MetricDepth, false},
		{"napx:hitrate,scale", SelectNapx | MetricHitRate | MetricScale, false},
		{"greedy", 0, true},
		{"napx:speed", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategyDefaults(t *testing.T) {
	assert.Equal(t, DefaultMetrics, SelectNapx.Metrics())
	assert.Equal(t, "napx:lru,depth,scale", SelectNapx.String())
	assert.Equal(t, "prob:dist", (SelectProb | MetricDist).String())
}

func TestCollector(t *testing.T) {
	c := newTestCache(t, 1, SelectNapx)
	c.Insert(newTestTile(t, "s", 0, 0)).Release()
	c.Insert(newTestTile(t, "s", 1, 0)).Release()

	col := NewCollector(c)
	assert.Equal(t, 1, testutil.CollectAndCount(col, "image_pipeline_cache_evictions_total"))
	assert.Equal(t, 4, testutil.CollectAndCount(col, "image_pipeline_cache_memory_bytes"))
	assert.Equal(t, 1, testutil.CollectAndCount(col, "image_pipeline_cache_hits_total"))
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(t, 16, SelectNapx)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				area := Area{X: (i % 10) * 16, Y: w * 16, Width: 16, Height: 16}
				key := Key(1, area)
				if got := c.Get(key); got != nil {
					got.Release()
					continue
				}
				tile := NewTile(key, area, "s", 2)
				tile.AllocChannels(1, 1)
				c.Insert(tile).Release()
			}
		}(w)
	}
	wg.Wait()
	// tiles held by workers during the final insertions may keep the cache
	// above its ceiling
	assert.LessOrEqual(t, c.Len(), 16+8)
}
