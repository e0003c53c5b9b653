package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by callers.
const (
	OutcomeProcessed        = "processed"
	OutcomeDuplicate        = "duplicate"
	OutcomeIgnored          = "ignored"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeAnomaly          = "anomaly"
	OutcomeUnknownPayment   = "unknown_payment"
	OutcomeError            = "error"

	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeRelayed   = "relayed"
)

// Metrics holds the service collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	wsConnections     prometheus.Gauge
	hubMessages       *prometheus.CounterVec
	assignmentResults *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	paymentIntents    *prometheus.CounterVec
	outboxDuration    *prometheus.HistogramVec
}

// New registers the service metrics on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "splitpay_ws_connections",
			Help: "Open table websocket connections.",
		}),
		hubMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitpay_hub_messages_total",
			Help: "Realtime messages handled by the hub.",
		}, []string{"type", "outcome"}),
		assignmentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitpay_assignments_total",
			Help: "Assignment attempts by result.",
		}, []string{"result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitpay_webhook_events_total",
			Help: "Payment provider notifications by outcome.",
		}, []string{"provider", "outcome"}),
		paymentIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitpay_payment_intents_total",
			Help: "Payment intent creations by result.",
		}, []string{"result"}),
		outboxDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "splitpay_outbox_batch_duration_seconds",
			Help:    "Duration of outbox publish batches in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
	}
	reg.MustRegister(m.wsConnections, m.hubMessages, m.assignmentResults, m.webhookEvents, m.paymentIntents, m.outboxDuration)
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil || m.wsConnections == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil || m.wsConnections == nil {
		return
	}
	m.wsConnections.Dec()
}

// HubMessage counts one realtime message by wire type and outcome.
func (m *Metrics) HubMessage(msgType, outcome string) {
	if m == nil || m.hubMessages == nil {
		return
	}
	m.hubMessages.WithLabelValues(normalizeLabel(msgType), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) AssignmentResult(result string) {
	if m == nil || m.assignmentResults == nil {
		return
	}
	m.assignmentResults.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) WebhookEvent(provider, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) PaymentIntent(result string) {
	if m == nil || m.paymentIntents == nil {
		return
	}
	m.paymentIntents.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveOutboxBatch records how long one publish batch took.
func (m *Metrics) ObserveOutboxBatch(result string, duration time.Duration) {
	if m == nil || m.outboxDuration == nil {
		return
	}
	m.outboxDuration.WithLabelValues(normalizeLabel(result)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
