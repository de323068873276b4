package webhook

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts webhook events by type and outcome.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the webhook collectors.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tricktime_webhook_events_total",
		Help: "Payment webhook events by type and reconciliation outcome.",
	}, []string{"type", "outcome"})
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(events)
	return &Metrics{events: events}
}

// Observe records one handled event.
func (m *Metrics) Observe(eventType string, outcome Outcome) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, string(outcome)).Inc()
}
