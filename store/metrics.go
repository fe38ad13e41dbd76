package store

import "github.com/prometheus/client_golang/prometheus"

var writeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mud",
	Subsystem: "store",
	Name:      "writes",
}, []string{"op", "outcome"})

var scanCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mud",
	Subsystem: "store",
	Name:      "scans",
}, []string{"index"})

func init() {
	prometheus.MustRegister(writeOutcomes, scanCount)
}
