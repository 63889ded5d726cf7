package mailer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sent counts dispatch attempts.
// Labels: transport (nats, log), outcome (ok, error)
var sent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nomee",
		Subsystem: "mailer",
		Name:      "jobs_total",
		Help:      "Email jobs dispatched by transport and outcome",
	},
	[]string{"transport", "outcome"},
)
