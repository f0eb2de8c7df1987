package txn

import "github.com/prometheus/client_golang/prometheus"

var (
	liveGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xacto",
			Subsystem: "txn",
			Name:      "live",
			Help:      "Number of transactions not yet freed.",
		})

	finishedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xacto",
			Subsystem: "txn",
			Name:      "finished_total",
			Help:      "Counter of transactions reaching a terminal state.",
		}, []string{"status"})

	commitWaitHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "xacto",
			Subsystem: "txn",
			Name:      "commit_wait_seconds",
			Help:      "Time a commit spent waiting for its dependencies.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
		})
)

func init() {
	prometheus.MustRegister(liveGauge)
	prometheus.MustRegister(finishedCounter)
	prometheus.MustRegister(commitWaitHistogram)
}
