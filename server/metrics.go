package server

import "github.com/prometheus/client_golang/prometheus"

var pushBatches = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "mud",
	Subsystem: "sync",
	Name:      "push_batches",
})

var mutationsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mud",
	Subsystem: "sync",
	Name:      "mutations",
}, []string{"result"})

var pullDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "mud",
	Subsystem: "sync",
	Name:      "pull_duration_seconds",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
})

var pokesSent = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "mud",
	Subsystem: "sync",
	Name:      "pokes_sent",
})

var pokesThrottled = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "mud",
	Subsystem: "sync",
	Name:      "pokes_throttled",
})

func init() {
	prometheus.MustRegister(pushBatches, mutationsApplied, pullDuration, pokesSent, pokesThrottled)
}
