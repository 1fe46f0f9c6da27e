package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ListingsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listings_submitted_total",
		Help: "Total number of listings submitted, by initial status",
	}, []string{"status"})

	ListingsModeratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listings_moderated_total",
		Help: "Total number of moderation decisions",
	}, []string{"status"})

	BookingsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_initiated_total",
		Help: "Total number of bookings initiated",
	})

	BookingsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_confirmed_total",
		Help: "Total number of bookings confirmed",
	})

	ConfirmationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_confirmations_rejected_total",
		Help: "Total number of rejected booking confirmations",
	}, []string{"reason"})

	BookingsAbandoned = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookings_abandoned",
		Help: "Pending bookings older than the abandonment threshold at the last sweep",
	})

	OracleFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_fallback_total",
		Help: "Total number of exchange rate lookups served by the fallback rate",
	}, []string{"reason"})

	OracleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_request_latency_seconds",
		Help:    "Latency of price oracle requests",
		Buckets: prometheus.DefBuckets,
	})

	RegistryCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_call_duration_seconds",
		Help:    "Latency of registry contract calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	RegistryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_errors_total",
		Help: "Total number of failed registry calls",
	}, []string{"method"})

	FeedEventsProjectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seller_feed_events_projected_total",
		Help: "Total number of confirmed bookings pushed to seller feeds",
	})

	ConsumerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_retries_total",
		Help: "Total number of handler retries for a single Kafka message",
	}, []string{"topic"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
