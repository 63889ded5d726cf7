package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// decisions counts limiter outcomes.
// Labels: action (submission, report), outcome (allowed, limited, fail_open)
var decisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nomee",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limiter decisions by action and outcome",
	},
	[]string{"action", "outcome"},
)
