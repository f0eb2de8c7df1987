package mvstore

import "github.com/prometheus/client_golang/prometheus"

var (
	keysGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xacto",
			Subsystem: "store",
			Name:      "keys",
			Help:      "Number of keys with a version chain.",
		})

	opCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xacto",
			Subsystem: "store",
			Name:      "ops_total",
			Help:      "Counter of store operations by type and outcome.",
		}, []string{"type", "result"})

	gcCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xacto",
			Subsystem: "store",
			Name:      "gc_removed_total",
			Help:      "Counter of versions removed by garbage collection.",
		}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(keysGauge)
	prometheus.MustRegister(opCounter)
	prometheus.MustRegister(gcCounter)
}
