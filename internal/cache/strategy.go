package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects the eviction candidate selection mode in its low four bits
// and the scoring metrics in the flags above them.
type Strategy uint32

// Selection modes.
const (
	// SelectNapx scores K sampled candidates and evicts the lowest score.
	SelectNapx Strategy = 0
	// SelectRandom evicts the first evictable candidate found.
	SelectRandom Strategy = 1
	// SelectProb picks among K sampled candidates with probability inverse
	// to their score.
	SelectProb Strategy = 2

	selectMask Strategy = 0xf
)

// Metric flags. A candidate's score is the product of the selected metrics;
// higher scores are more worth keeping.
const (
	MetricDist Strategy = 1 << (4 + iota)
	MetricTime
	MetricHitRate
	MetricRecency
	MetricDepth
	MetricScale

	metricMask = MetricDist | MetricTime | MetricHitRate | MetricRecency | MetricDepth | MetricScale
)

// DefaultMetrics are used when a strategy names no metric.
const DefaultMetrics = MetricRecency | MetricDepth | MetricScale

// ErrInvalidStrategy is returned for unparseable strategy strings.
var ErrInvalidStrategy = errors.New("cache: invalid strategy")

var selectNames = map[Strategy]string{
	SelectNapx:   "napx",
	SelectRandom: "random",
	SelectProb:   "prob",
}

var metricNames = []struct {
	flag Strategy
	name string
}{
	{MetricDist, "dist"},
	{MetricTime, "time"},
	{MetricHitRate, "hitrate"},
	{MetricRecency, "lru"},
	{MetricDepth, "depth"},
	{MetricScale, "scale"},
}

// Select returns the selection mode.
func (s Strategy) Select() Strategy {
	return s & selectMask
}

// Metrics returns the metric flags, substituting DefaultMetrics when none is set.
func (s Strategy) Metrics() Strategy {
	if m := s & metricMask; m != 0 {
		return m
	}
	return DefaultMetrics
}

func (s Strategy) String() string {
	var parts []string
	for _, m := range metricNames {
		if s.Metrics()&m.flag != 0 {
			parts = append(parts, m.name)
		}
	}
	name, ok := selectNames[s.Select()]
	if !ok {
		name = fmt.Sprintf("select(%d)", uint32(s.Select()))
	}
	return name + ":" + strings.Join(parts, ",")
}

// ParseStrategy parses "mode[:metric,metric...]", e.g. "napx:lru,depth".
func ParseStrategy(s string) (Strategy, error) {
	mode, metrics, _ := strings.Cut(strings.TrimSpace(s), ":")

	var st Strategy
	found := false
	for flag, name := range selectNames {
		if strings.EqualFold(mode, name) {
			st, found = flag, true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidStrategy, mode)
	}

	if metrics == "" {
		return st, nil
	}
	for _, tok := range strings.Split(metrics, ",") {
		tok = strings.TrimSpace(tok)
		ok := false
		for _, m := range metricNames {
			if strings.EqualFold(tok, m.name) {
				st |= m.flag
				ok = true
				break
			}
		}
		if !ok {
			return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidStrategy, tok)
		}
	}
	return st, nil
}
