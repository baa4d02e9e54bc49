package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// WebhookMetrics counts Stripe deliveries by event type and outcome.
type WebhookMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stripe_webhook_events_total",
		Help:      "Stripe webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stripe_webhook_handle_seconds",
		Help:      "Time spent handling a Stripe webhook delivery.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})
	reg.MustRegister(events, duration)
	return &WebhookMetrics{events: events, duration: duration}
}

// Observe records one delivery.
func (w *WebhookMetrics) Observe(eventType, outcome string, elapsed time.Duration) {
	if w == nil || w.events == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	w.events.WithLabelValues(eventType, normalizeLabel(outcome)).Inc()
	w.duration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}
