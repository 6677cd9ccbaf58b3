package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	WebhookEvents    *prometheus.CounterVec
	Reconciliations  *prometheus.CounterVec
	OrdersCreated    *prometheus.CounterVec
	CreditsConsumed  prometheus.Counter
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total payment provider API requests by endpoint and status.",
			}, []string{"provider", "endpoint", "status"}),
			ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency distribution for payment provider API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"provider", "endpoint", "status"}),
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Total inbound provider webhook events by result.",
			}, []string{"provider", "result"}),
			Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Total reconciliation attempts by outcome.",
			}, []string{"outcome"}),
			OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Total orders created by package.",
			}, []string{"package"}),
			CreditsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_consumed_total",
				Help:      "Total credits consumed by paid feature use.",
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.ProviderRequests,
			metricsInstance.ProviderLatency,
			metricsInstance.WebhookEvents,
			metricsInstance.Reconciliations,
			metricsInstance.OrdersCreated,
			metricsInstance.CreditsConsumed,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
