package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the coordinator's prometheus instruments.
type Metrics struct {
	stages   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	wait     prometheus.Histogram
	inflight prometheus.Gauge
	failures prometheus.Counter
}

// NewMetrics creates the instruments and registers them with reg. A nil reg
// creates unregistered instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_pipeline",
			Subsystem: "render",
			Name:      "stage_lookups_total",
			Help:      "Stage tile lookups by stage and cache result.",
		}, []string{"stage", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "image_pipeline",
			Subsystem: "render",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in stage workers.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"stage"}),
		wait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "image_pipeline",
			Subsystem: "render",
			Name:      "worker_wait_seconds",
			Help:      "Time requests waited for a free worker.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "image_pipeline",
			Subsystem: "render",
			Name:      "inflight",
			Help:      "Tile renders currently running.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "image_pipeline",
			Subsystem: "render",
			Name:      "failures_total",
			Help:      "Tile renders that returned an error.",
		}),
	}
}
