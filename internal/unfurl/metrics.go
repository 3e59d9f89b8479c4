package unfurl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var unfurlOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "unfurl_outcomes_total",
	Help: "Unfurl attempts by outcome (ok, unsafe, upstream_error)",
}, []string{"outcome"})
