package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var duplicates = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "nomee",
	Subsystem: "identity",
	Name:      "duplicate_submissions_total",
	Help:      "Identity submissions rejected as duplicates",
})
