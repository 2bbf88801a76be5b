package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Compilations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datagate_compilations_total",
	Help: "The number of filter compilations by collection and result",
}, []string{"collection", "result"})

var Walks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datagate_walks_total",
	Help: "The number of payload walks by direction and result",
}, []string{"direction", "result"})

// AccessChecks counts item access lookups. cache is "hit", "miss" or
// "memory" for items checked without a query.
var AccessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datagate_access_checks_total",
	Help: "The number of item access lookups",
}, []string{"action", "cache"})

var SpanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "datagate_span_duration_seconds",
	Help:    "The duration of instrumented operations",
	Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
}, []string{"component", "action", "status"})

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
