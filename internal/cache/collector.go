package cache

import "github.com/prometheus/client_golang/prometheus"

const namespace = "image_pipeline"

var (
	hitsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "hits_total"),
		"Tile cache hits per stage.", []string{"stage"}, nil)
	missesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "misses_total"),
		"Tile cache misses per stage.", []string{"stage"}, nil)
	stageTilesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "stage_tiles"),
		"Cached tiles per stage.", []string{"stage"}, nil)
	stageBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "stage_bytes"),
		"Cached tile bytes per stage.", []string{"stage"}, nil)
	renderSecondsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "render_seconds_total"),
		"Render time of tiles inserted per stage.", []string{"stage"}, nil)
	memoryDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "memory_bytes"),
		"Accounted memory per counter.", []string{"kind"}, nil)
	memoryPeakDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "memory_peak_bytes"),
		"Peak accounted memory per counter.", []string{"kind"}, nil)
	evictionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "evictions_total"),
		"Tiles evicted.", nil, nil)
	evictFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "eviction_failures_total"),
		"Eviction rounds that found no evictable tile.", nil, nil)
	limitDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "limit_bytes"),
		"Cached-tile memory ceiling.", nil, nil)
)

// Collector exports cache statistics as prometheus metrics.
type Collector struct {
	cache *Cache
}

// NewCollector returns a collector reading from c.
func NewCollector(c *Cache) *Collector {
	return &Collector{cache: c}
}

// Describe implements prometheus.Collector.
func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		hitsDesc, missesDesc, stageTilesDesc, stageBytesDesc, renderSecondsDesc,
		memoryDesc, memoryPeakDesc, evictionsDesc, evictFailuresDesc, limitDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	s := col.cache.Stats()
	for _, st := range s.Stages {
		ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(st.Hits), st.Stage)
		ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(st.Misses), st.Stage)
		ch <- prometheus.MustNewConstMetric(stageTilesDesc, prometheus.GaugeValue, float64(st.Tiles), st.Stage)
		ch <- prometheus.MustNewConstMetric(stageBytesDesc, prometheus.GaugeValue, float64(st.Bytes), st.Stage)
		ch <- prometheus.MustNewConstMetric(renderSecondsDesc, prometheus.CounterValue, st.Time.Seconds(), st.Stage)
	}
	for kind, m := range s.Memory {
		ch <- prometheus.MustNewConstMetric(memoryDesc, prometheus.GaugeValue, float64(m.Current), kind)
		ch <- prometheus.MustNewConstMetric(memoryPeakDesc, prometheus.GaugeValue, float64(m.Peak), kind)
	}
	ch <- prometheus.MustNewConstMetric(evictionsDesc, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(evictFailuresDesc, prometheus.CounterValue, float64(s.EvictionFailures))
	ch <- prometheus.MustNewConstMetric(limitDesc, prometheus.GaugeValue, float64(s.Limit))
}
