package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier_dispatch", Name: "jobs_created_total", Help: "Total delivery jobs created"})

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "courier_dispatch", Name: "claims_total", Help: "Claim attempts by outcome"},
		[]string{"result"},
	)
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "courier_dispatch", Name: "transitions_total", Help: "Lifecycle transitions by outcome"},
		[]string{"transition", "result"},
	)

	LocationReportsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier_dispatch", Name: "location_reports_total", Help: "Accepted rider location reports"})
	BroadcastEventsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "courier_dispatch", Name: "broadcast_events_total", Help: "Events broadcast to all viewers"})
	WSSubscribers        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "courier_dispatch", Name: "ws_subscribers", Help: "Live viewer subscriptions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "courier_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "courier_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
