// Package metrics exposes Prometheus collectors for the drawing service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DrawingsTotal counts drawing requests by mode and final outcome
	// ("done" or the stage that aborted).
	DrawingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timesea",
			Subsystem: "drawing",
			Name:      "requests_total",
			Help:      "Drawing requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "timesea",
			Subsystem: "drawing",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each drawing stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 180},
		},
		[]string{"mode", "stage"},
	)

	CreditsDebited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timesea",
			Subsystem: "credit",
			Name:      "debited_total",
			Help:      "Credits debited for drawings",
		},
		[]string{"mode"},
	)

	ArtifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timesea",
			Subsystem: "storage",
			Name:      "artifacts_total",
			Help:      "Persisted generation artifacts by status",
		},
		[]string{"status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timesea",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveStage records how long a stage took.
func ObserveStage(mode, stage string, started time.Time) {
	StageDuration.WithLabelValues(mode, stage).Observe(time.Since(started).Seconds())
}
