package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "freshora"

// Webhook outcomes recorded by the reconciler.
const (
	WebhookOutcomeTransitioned = "transitioned"
	WebhookOutcomeAlreadyPaid  = "already_placed"
	WebhookOutcomeFallback     = "fallback_created"
	WebhookOutcomeDuplicate    = "duplicate"
	WebhookOutcomeIgnored      = "ignored"
	WebhookOutcomeRejected     = "signature_rejected"
	WebhookOutcomeFailed       = "failed"
)

// OrderMetrics counts checkout and reconciliation activity.
type OrderMetrics struct {
	placed        *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	gatewayErrors prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders written to the ledger, by payment method and initial status.",
	}, []string{"payment_method", "status"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_webhook_events_total",
		Help:      "Payment webhook deliveries by outcome.",
	}, []string{"outcome"})
	gatewayErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_gateway_errors_total",
		Help:      "Failed calls to the payment gateway.",
	})
	reg.MustRegister(placed, webhookEvents, gatewayErrors)
	return &OrderMetrics{placed: placed, webhookEvents: webhookEvents, gatewayErrors: gatewayErrors}
}

// IncOrderCreated records a newly persisted order.
func (m *OrderMetrics) IncOrderCreated(method, status string) {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Inc()
}

// IncWebhook records the outcome of one webhook delivery.
func (m *OrderMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncGatewayError records a failed gateway call.
func (m *OrderMetrics) IncGatewayError() {
	if m == nil || m.gatewayErrors == nil {
		return
	}
	m.gatewayErrors.Inc()
}

// HTTPMetrics observes request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP metrics on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route, method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

// Observe records one completed request.
func (m *HTTPMetrics) Observe(route, method string, status int, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(route), method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
