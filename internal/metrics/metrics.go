package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	DeliveriesCreated prometheus.Counter
	Attempts          *prometheus.CounterVec // outcome: success|retrying|failed|cancelled
	AttemptLatency    prometheus.Histogram
	ClaimsWon         prometheus.Counter
	ClaimsLost        prometheus.Counter
}

// New registers the engine collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DeliveriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "webhook_deliveries_created_total",
			Help: "Delivery rows created by event fan-out.",
		}),
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_delivery_attempts_total",
			Help: "Delivery attempts by resulting state.",
		}, []string{"outcome"}),
		AttemptLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "webhook_delivery_latency_seconds",
			Help:    "Outbound HTTP request latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ClaimsWon: factory.NewCounter(prometheus.CounterOpts{
			Name: "webhook_delivery_claims_won_total",
			Help: "Due deliveries claimed by this instance.",
		}),
		ClaimsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "webhook_delivery_claims_lost_total",
			Help: "Claim attempts lost to another instance.",
		}),
	}
}

// ObserveAttempt records one attempt outcome, nil-safe.
func (m *Metrics) ObserveAttempt(outcome string, latencyMs int) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome).Inc()
	m.AttemptLatency.Observe(float64(latencyMs) / 1000.0)
}
