package cache

import "math"

// overlapCloseness stands in for infinite closeness of overlapping tiles and
// for the hit rate of a stage without statistics.
const overlapCloseness = 1e9

// candidateFrom probes every slot once, starting at start, and returns the
// first cached tile that is neither wanted nor exclude, with its slot.
func (c *Cache) candidateFrom(start int, exclude *Tile) (*Tile, int) {
	n := len(c.slots)
	for i := 0; i < n; i++ {
		pos := (start + i) % n
		t := c.slots[pos]
		if t != nil && t != exclude && !t.Wanted() {
			return t, pos
		}
	}
	return nil, -1
}

// selectVictim picks the tile to evict in favor of fresh, which is nil when
// no tile is being inserted. Sampling starts at a random slot and continues
// past each candidate found, so up to K distinct candidates are scored.
func (c *Cache) selectVictim(fresh *Tile) *Tile {
	first, pos := c.candidateFrom(c.rng.Intn(len(c.slots)), fresh)
	if first == nil || c.strategy.Select() == SelectRandom {
		return first
	}

	sampled := []*Tile{first}
	for len(sampled) < c.samples {
		var t *Tile
		t, pos = c.candidateFrom(pos+1, fresh)
		if t == first {
			break
		}
		sampled = append(sampled, t)
	}
	scores := make([]float64, len(sampled))
	for i, t := range sampled {
		scores[i] = c.score(t, fresh)
	}

	best := 0
	for i := 1; i < len(sampled); i++ {
		if better(sampled[i], scores[i], sampled[best], scores[best]) {
			best = i
		}
	}
	if c.strategy.Select() == SelectNapx {
		return sampled[best]
	}
	return c.weightedPick(sampled, scores, sampled[best])
}

// better orders eviction preference: lower score first, then the older
// generation, then the lower slot.
func better(a *Tile, as float64, b *Tile, bs float64) bool {
	if as != bs {
		return as < bs
	}
	if a.generation != b.generation {
		return a.generation < b.generation
	}
	return a.slot < b.slot
}

// weightedPick chooses a sample with probability proportional to
// 1/(score+ε). Without usable weights it returns fallback.
func (c *Cache) weightedPick(sampled []*Tile, scores []float64, fallback *Tile) *Tile {
	const eps = 1e-9
	weights := make([]float64, len(scores))
	var total float64
	for i, s := range scores {
		w := 1 / (s + eps)
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total == 0 || math.IsInf(total, 0) {
		return fallback
	}
	r := c.rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return sampled[i]
		}
		r -= w
	}
	return sampled[len(sampled)-1]
}

// score multiplies the selected metrics for t against the tile being inserted.
func (c *Cache) score(t, fresh *Tile) float64 {
	m := c.strategy.Metrics()
	s := 1.0
	if m&MetricDist != 0 && fresh != nil {
		s *= closeness(t.Area, fresh.Area)
	}
	if m&MetricTime != 0 {
		s *= t.Time.Seconds()
	}
	if m&MetricHitRate != 0 {
		s *= c.hitRate(t.Stage)
	}
	if m&MetricRecency != 0 {
		age := c.gen - t.generation
		if age == 0 {
			age = 1
		}
		s *= 1 / float64(age)
	}
	if m&MetricDepth != 0 {
		if t.Depth <= 1 {
			s *= 100
		} else {
			s *= 1 / float64(t.Depth)
		}
	}
	if m&MetricScale != 0 {
		s *= float64(t.Area.Scale + 1)
	}
	return s
}

// closeness is the inverse euclidean gap between two areas in full-resolution
// pixel space.
func closeness(a, b Area) float64 {
	ax0, ay0, ax1, ay1 := a.Normalized()
	bx0, by0, bx1, by1 := b.Normalized()
	dx := max(0, max(ax0-bx1, bx0-ax1))
	dy := max(0, max(ay0-by1, by0-ay1))
	if dx == 0 && dy == 0 {
		return overlapCloseness
	}
	return 1 / math.Hypot(float64(dx), float64(dy))
}

func (c *Cache) hitRate(stage string) float64 {
	st, ok := c.stages[stage]
	if !ok || st.hits+st.misses == 0 || st.tiles <= 0 {
		return overlapCloseness
	}
	rate := float64(st.hits) / float64(st.hits+st.misses)
	return rate / float64(st.tiles)
}
