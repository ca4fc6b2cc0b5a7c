package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetricsCountsByOutcome(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())
	m.Inc("order.paid", OutboxPublished)
	m.Inc("order.paid", OutboxPublished)
	m.Inc("order.paid", OutboxRetried)

	if got := testutil.ToFloat64(m.rows.WithLabelValues("order.paid", OutboxPublished)); got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	if got := testutil.ToFloat64(m.rows.WithLabelValues("order.paid", OutboxRetried)); got != 1 {
		t.Fatalf("expected 1 retried, got %f", got)
	}
}

func TestNilOutboxMetricsIsNoop(t *testing.T) {
	var m *OutboxMetrics
	m.Inc("order.created", OutboxDeadLettered)
	NewOutboxMetrics(nil).Inc("order.created", OutboxPublished)
}
