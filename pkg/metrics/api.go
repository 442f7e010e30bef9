package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics records webhook, relay, and email outcomes.
type APIMetrics struct {
	webhookEvents *prometheus.CounterVec
	relayStreams  *prometheus.CounterVec
	emails        *prometheus.CounterVec
}

// NewAPIMetrics registers the API metrics on the provided registerer.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	if reg == nil {
		return &APIMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Processed payment-processor webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	relayStreams := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_streams_total",
		Help: "Relay requests forwarded upstream by provider and outcome.",
	}, []string{"provider", "outcome"})
	emails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transactional_emails_total",
		Help: "Transactional email sends by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(webhookEvents, relayStreams, emails)
	return &APIMetrics{
		webhookEvents: webhookEvents,
		relayStreams:  relayStreams,
		emails:        emails,
	}
}

// IncWebhookEvent increments the webhook counter for the event type.
func (m *APIMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncRelayStream increments the relay counter for the provider.
func (m *APIMetrics) IncRelayStream(provider, outcome string) {
	if m == nil || m.relayStreams == nil {
		return
	}
	m.relayStreams.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncEmail increments the transactional email counter.
func (m *APIMetrics) IncEmail(outcome string) {
	if m == nil || m.emails == nil {
		return
	}
	m.emails.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
