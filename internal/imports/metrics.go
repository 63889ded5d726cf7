package imports

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomee",
		Subsystem: "imports",
		Name:      "processed_total",
		Help:      "Processed imports by resulting state and failure stage",
	}, []string{"state", "failure"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomee",
		Subsystem: "imports",
		Name:      "stage_duration_seconds",
		Help:      "Duration of model calls per pipeline stage",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})
)
