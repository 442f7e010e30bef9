package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAPIMetricsCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAPIMetrics(reg)

	m.IncWebhookEvent("subscription.updated", "ok")
	m.IncWebhookEvent("subscription.updated", "ok")
	m.IncWebhookEvent("", "error")
	m.IncRelayStream("vapi", "ok")
	m.IncEmail("sent")

	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("subscription.updated", "ok")); got != 2 {
		t.Fatalf("expected 2 webhook events, got %v", got)
	}
	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("unknown", "error")); got != 1 {
		t.Fatalf("expected empty type to normalize to unknown, got %v", got)
	}
	if got := testutil.ToFloat64(m.relayStreams.WithLabelValues("vapi", "ok")); got != 1 {
		t.Fatalf("expected 1 relay stream, got %v", got)
	}
}

func TestAPIMetricsNilSafe(t *testing.T) {
	var m *APIMetrics
	m.IncWebhookEvent("x", "y")
	m.IncRelayStream("x", "y")
	m.IncEmail("x")

	empty := NewAPIMetrics(nil)
	empty.IncWebhookEvent("x", "y")
}
