package server

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "xacto",
			Subsystem: "server",
			Name:      "connections",
			Help:      "Number of registered client connections.",
		})

	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xacto",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Counter of client requests by packet type.",
		}, []string{"type"})
)

func init() {
	prometheus.MustRegister(connectionsGauge)
	prometheus.MustRegister(requestCounter)
}
