package ws

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minichat_ws_sessions",
		Help: "Number of live websocket sessions.",
	})
	pushDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minichat_push_delivered_total",
		Help: "Pushes enqueued to a recipient's live channel.",
	})
	pushSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minichat_push_skipped_total",
		Help: "Pushes skipped because the recipient was offline or closing.",
	})
)

func init() {
	prometheus.MustRegister(sessionsGauge, pushDelivered, pushSkipped)
}
