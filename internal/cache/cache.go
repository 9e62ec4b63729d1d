package cache

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/logging"
)

const (
	// DefaultSamples is K, the number of candidates scored per eviction.
	DefaultSamples = 128

	slotsPerMB = 32
	minSlots   = 64
)

// ErrInvalidLimit is returned by New for a missing or negative memory ceiling.
var ErrInvalidLimit = errors.New("cache: memory ceiling must be positive")

// Options configures a Cache.
type Options struct {
	// MemoryMB is the cached-tile memory ceiling in MiB.
	MemoryMB int
	// MemoryLimit overrides MemoryMB with an exact ceiling in bytes.
	MemoryLimit int64
	// Slots overrides the size of the eviction slot array.
	Slots int

	Strategy Strategy
	// Samples overrides DefaultSamples.
	Samples int
	// Seed seeds candidate sampling; zero seeds from the clock.
	Seed int64

	Logger *zap.Logger
}

// Cache is a bounded store of rendered tiles. It is safe for concurrent use.
type Cache struct {
	mu sync.Mutex

	table map[uint64]*Tile
	slots []*Tile
	count int
	gen   uint64

	limit    int64
	strategy Strategy
	samples  int
	rng      *rand.Rand

	mem    [memKinds]counter
	stages map[string]*stageStats

	evictions     uint64
	evictFailures uint64

	log *zap.Logger
}

func slotsFor(limit int64) int {
	n := int(limit>>20) * slotsPerMB
	if n < minSlots {
		n = minSlots
	}
	return n
}

// New validates opts and returns an empty cache.
func New(opts Options) (*Cache, error) {
	limit := opts.MemoryLimit
	if limit == 0 {
		limit = int64(opts.MemoryMB) << 20
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidLimit, limit)
	}
	if sel := opts.Strategy.Select(); sel > SelectProb {
		return nil, fmt.Errorf("%w: selection mode %d", ErrInvalidStrategy, sel)
	}

	slots := opts.Slots
	if slots <= 0 {
		slots = slotsFor(limit)
	}
	samples := opts.Samples
	if samples <= 0 {
		samples = DefaultSamples
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log := logging.Or(opts.Logger)

	return &Cache{
		table:    make(map[uint64]*Tile),
		slots:    make([]*Tile, slots),
		limit:    limit,
		strategy: opts.Strategy,
		samples:  samples,
		rng:      rand.New(rand.NewSource(seed)),
		stages:   make(map[string]*stageStats),
		log:      log,
	}, nil
}

// Limit returns the cached-tile memory ceiling in bytes.
func (c *Cache) Limit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// SetLimit changes the memory ceiling. A larger ceiling grows the slot array;
// a smaller one evicts unwanted tiles until cached memory is below it.
func (c *Cache) SetLimit(limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidLimit, limit)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = limit
	if n := slotsFor(limit); n > len(c.slots) {
		c.growSlots(n)
	}

	evicted := 0
	for c.mem[MemCached].cur >= c.limit {
		victim := c.selectVictim(nil)
		if victim == nil {
			break
		}
		c.evict(victim)
		evicted++
	}
	c.log.Info("memory ceiling changed",
		zap.Int64("limit", limit),
		zap.Int("evicted", evicted),
		zap.Int64("cached_bytes", c.mem[MemCached].cur))
	return nil
}

func (c *Cache) growSlots(n int) {
	grown := make([]*Tile, n)
	copy(grown, c.slots)
	c.slots = grown
}

func (c *Cache) stage(name string) *stageStats {
	s, ok := c.stages[name]
	if !ok {
		s = &stageStats{}
		c.stages[name] = s
	}
	return s
}

func (c *Cache) touch(t *Tile) {
	c.gen++
	t.generation = c.gen
}

// Get returns the tile cached under key, or nil on a miss. A returned tile
// is wanted on behalf of the caller, who must Release it.
func (c *Cache) Get(key uint64) *Tile {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.table[key]
	if !ok {
		return nil
	}
	c.touch(t)
	c.stage(t.Stage).hits++
	t.Want()
	return t
}

// Insert stores a freshly rendered tile and records the miss that caused it.
// If a tile with the same key is already cached, the resident tile is kept
// and returned instead. Either way the returned tile is wanted on behalf of
// the caller.
//
// After storing, tiles are evicted while cached memory is at or above the
// ceiling or the slot array, counting the inserted tile, is at least half
// full. The inserted tile is never
// a candidate. When no candidate remains the insertion proceeds over the
// ceiling.
func (c *Cache) Insert(t *Tile) *Tile {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stage(t.Stage)
	st.misses++
	st.time += t.Time

	if resident, ok := c.table[t.Key]; ok {
		c.touch(resident)
		resident.Want()
		return resident
	}

	c.touch(t)
	t.Want()
	t.cached = true
	t.size = t.Size()
	c.table[t.Key] = t
	c.mem[MemCached].add(t.size)
	st.tiles++
	st.bytes += t.size

	// t takes its slot after eviction but counts toward occupancy now
	for c.mem[MemCached].cur >= c.limit || c.count+1 >= len(c.slots)/2 {
		victim := c.selectVictim(t)
		if victim == nil {
			if c.count > 0 {
				c.evictFailures++
				c.log.Warn("no evictable tile",
					zap.Int("tiles", c.count),
					zap.Int64("cached_bytes", c.mem[MemCached].cur),
					zap.Int64("limit", c.limit))
			}
			break
		}
		c.evict(victim)
	}

	c.place(t)
	return t
}

// place puts t into a free slot, growing the array when every slot is held.
func (c *Cache) place(t *Tile) {
	if c.count == len(c.slots) {
		c.log.Debug("growing slot array", zap.Int("slots", len(c.slots)*2))
		c.growSlots(len(c.slots) * 2)
	}
	start := c.rng.Intn(len(c.slots))
	for i := 0; i < len(c.slots); i++ {
		pos := (start + i) % len(c.slots)
		if c.slots[pos] == nil {
			c.slots[pos] = t
			t.slot = pos
			c.count++
			return
		}
	}
}

func (c *Cache) evict(t *Tile) {
	c.slots[t.slot] = nil
	c.count--
	c.remove(t)
	c.evictions++
}

// remove drops t from the table and the accounting.
func (c *Cache) remove(t *Tile) {
	delete(c.table, t.Key)
	c.mem[MemCached].add(-t.size)
	st := c.stage(t.Stage)
	st.tiles--
	st.bytes -= t.size
	t.cached = false
	t.slot = -1
}

// Flush destroys every tile, wanted or not.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.table {
		c.remove(t)
	}
	for i := range c.slots {
		c.slots[i] = nil
	}
	c.count = 0
	c.log.Info("cache flushed")
}

// Len returns the number of cached tiles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

// Tiles returns a snapshot of the cached tiles.
func (c *Cache) Tiles() []*Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Tile, 0, len(c.table))
	for _, t := range c.table {
		out = append(out, t)
	}
	return out
}
