package cache

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// TileSize is the edge length in pixels of a full tile.
const TileSize = 256

// Area is a tile rectangle. X and Y are pixel coordinates at the given scale
// level; scale s shows the image downsampled by 2^s.
type Area struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Scale  int `json:"scale"`
}

// Normalized returns the area in full-resolution pixel space.
func (a Area) Normalized() (x0, y0, x1, y1 int) {
	return a.X << a.Scale, a.Y << a.Scale, (a.X + a.Width) << a.Scale, (a.Y + a.Height) << a.Scale
}

// Pixels returns the pixel count of the area.
func (a Area) Pixels() int {
	return a.Width * a.Height
}

// Channel is one channel plane of a tile, rows stored top to bottom.
type Channel struct {
	Data          []byte
	BytesPerPixel int
}

// Tile is one rendered unit of a pipeline stage.
type Tile struct {
	Key      uint64
	Area     Area
	Channels []Channel

	// Stage names the filter stage that produced the tile.
	Stage string
	// Depth is the distance of the stage from the chain source, starting at 1.
	Depth int
	// Time is the measured render duration.
	Time time.Duration

	wanted     atomic.Int32
	generation uint64
	cached     bool
	slot       int
	size       int64
}

// NewTile returns an empty tile for key.
func NewTile(key uint64, area Area, stage string, depth int) *Tile {
	return &Tile{Key: key, Area: area, Stage: stage, Depth: depth, slot: -1}
}

// Key computes the cache key of a tile of the stage identified by stageHash.
func Key(stageHash uint64, a Area) uint64 {
	var buf [48]byte
	binary.LittleEndian.PutUint64(buf[0:], stageHash)
	binary.LittleEndian.PutUint64(buf[8:], uint64(a.X))
	binary.LittleEndian.PutUint64(buf[16:], uint64(a.Y))
	binary.LittleEndian.PutUint64(buf[24:], uint64(a.Width))
	binary.LittleEndian.PutUint64(buf[32:], uint64(a.Height))
	binary.LittleEndian.PutUint64(buf[40:], uint64(a.Scale))
	return xxhash.Sum64(buf[:])
}

// AllocChannels allocates n zeroed channel planes sized for the tile area.
func (t *Tile) AllocChannels(n, bytesPerPixel int) {
	t.Channels = make([]Channel, n)
	for i := range t.Channels {
		t.Channels[i] = Channel{
			Data:          make([]byte, t.Area.Pixels()*bytesPerPixel),
			BytesPerPixel: bytesPerPixel,
		}
	}
}

// Size returns the number of pixel bytes held by the tile.
func (t *Tile) Size() int64 {
	var n int64
	for _, c := range t.Channels {
		n += int64(len(c.Data))
	}
	return n
}

// Want marks the tile as referenced; wanted tiles are never evicted.
func (t *Tile) Want() {
	t.wanted.Add(1)
}

// Release drops one reference taken by Want, Get or Insert.
func (t *Tile) Release() {
	if t.wanted.Add(-1) < 0 {
		t.wanted.Store(0)
	}
}

// Wanted reports whether any reference is held.
func (t *Tile) Wanted() bool {
	return t.wanted.Load() > 0
}

// Generation returns the recency stamp assigned on insertion and on each hit.
func (t *Tile) Generation() uint64 {
	return t.generation
}
