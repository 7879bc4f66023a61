// Package metrics exposes the storefront's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	checkoutSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_steps_total",
			Help: "Checkout workflow steps by outcome",
		},
		[]string{"step", "status"},
	)

	exchangeRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_exchange_rate",
			Help: "Effective USD to local currency rate",
		},
	)

	rateFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_exchange_rate_fetches_total",
			Help: "Exchange rate quote fetches by source and outcome",
		},
		[]string{"source", "status"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_published_total",
			Help: "Domain events handed to the broker",
		},
		[]string{"type", "status"},
	)
)

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordCheckoutStep(step string, success bool) {
	checkoutSteps.WithLabelValues(step, outcome(success)).Inc()
}

func SetExchangeRate(rate float64) {
	exchangeRate.Set(rate)
}

func RecordRateFetch(source string, success bool) {
	rateFetches.WithLabelValues(source, outcome(success)).Inc()
}

func RecordEventPublished(eventType string, success bool) {
	eventsPublished.WithLabelValues(eventType, outcome(success)).Inc()
}
