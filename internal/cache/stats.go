package cache

import (
	"sort"
	"time"
)

// MemKind names one of the memory accounting counters.
type MemKind int

// Memory counters. Only MemCached drives eviction.
const (
	MemCached MemKind = iota
	MemUncached
	MemBuffers
	MemApp
	memKinds
)

var memKindNames = [memKinds]string{"cached", "uncached", "buffers", "app"}

func (k MemKind) String() string {
	if k < 0 || k >= memKinds {
		return "unknown"
	}
	return memKindNames[k]
}

type counter struct {
	cur, peak int64
}

func (c *counter) add(delta int64) {
	c.cur += delta
	if c.cur > c.peak {
		c.peak = c.cur
	}
}

type stageStats struct {
	hits, misses uint64
	tiles        int
	time         time.Duration
	bytes        int64
}

// Memory is a snapshot of one memory counter.
type Memory struct {
	Current int64 `json:"current"`
	Peak    int64 `json:"peak"`
}

// StageStats summarizes the tiles of one filter stage.
type StageStats struct {
	Stage  string        `json:"stage"`
	Hits   uint64        `json:"hits"`
	Misses uint64        `json:"misses"`
	Tiles  int           `json:"tiles"`
	Time   time.Duration `json:"time_ns"`
	Bytes  int64         `json:"bytes"`
}

// HitRate returns hits / (hits + misses), or zero without lookups.
func (s StageStats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Stats is a snapshot of cache state.
type Stats struct {
	Tiles            int               `json:"tiles"`
	Slots            int               `json:"slots"`
	Limit            int64             `json:"limit_bytes"`
	Strategy         string            `json:"strategy"`
	Generation       uint64            `json:"generation"`
	Evictions        uint64            `json:"evictions"`
	EvictionFailures uint64            `json:"eviction_failures"`
	Memory           map[string]Memory `json:"memory"`
	Stages           []StageStats      `json:"stages"`
}

// Stats returns per-stage statistics sorted by stage name, together with
// the memory counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Tiles:            len(c.table),
		Slots:            len(c.slots),
		Limit:            c.limit,
		Strategy:         c.strategy.String(),
		Generation:       c.gen,
		Evictions:        c.evictions,
		EvictionFailures: c.evictFailures,
		Memory:           make(map[string]Memory, memKinds),
	}
	for k := MemKind(0); k < memKinds; k++ {
		s.Memory[k.String()] = Memory{Current: c.mem[k].cur, Peak: c.mem[k].peak}
	}
	for name, st := range c.stages {
		s.Stages = append(s.Stages, StageStats{
			Stage:  name,
			Hits:   st.hits,
			Misses: st.misses,
			Tiles:  st.tiles,
			Time:   st.time,
			Bytes:  st.bytes,
		})
	}
	sort.Slice(s.Stages, func(i, j int) bool { return s.Stages[i].Stage < s.Stages[j].Stage })
	return s
}

// Track adjusts a memory counter outside the cached-tile counter, e.g. for
// in-flight render buffers or application-owned images.
func (c *Cache) Track(kind MemKind, delta int64) {
	if kind == MemCached {
		return
	}
	c.mu.Lock()
	c.mem[kind].add(delta)
	c.mu.Unlock()
}

// TrackApp adjusts the application memory counter.
func (c *Cache) TrackApp(delta int64) {
	c.Track(MemApp, delta)
}

// BufferAlloc returns a zeroed worker buffer of n bytes accounted under
// MemBuffers. It takes the cache lock.
func (c *Cache) BufferAlloc(n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[MemBuffers].add(int64(n))
	return make([]byte, n)
}

// BufferFree returns a buffer obtained from BufferAlloc to the accounting.
func (c *Cache) BufferFree(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[MemBuffers].add(-int64(cap(b)))
}
