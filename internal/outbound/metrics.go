package outbound

import "github.com/prometheus/client_golang/prometheus"

var (
	sentCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_messages_sent_total",
			Help: "Outbound messages delivered to the transport",
		},
		[]string{"tenant_id"},
	)

	failedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_messages_failed_total",
			Help: "Outbound messages dropped after exhausting their attempts",
		},
		[]string{"tenant_id"},
	)

	pendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbound_queue_pending",
			Help: "Messages waiting in the tenant queue",
		},
		[]string{"tenant_id"},
	)
)

// RegisterMetrics registers the queue collectors. Call it once per process.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(sentCounter, failedCounter, pendingGauge)
}
