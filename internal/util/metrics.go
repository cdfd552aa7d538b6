package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BidsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_submitted_total",
		Help: "Total number of locally submitted bids",
	})

	BidsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_accepted_total",
		Help: "Total number of accepted bids",
	})

	BidsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_rejected_total",
		Help: "Total number of rejected bids",
	})

	BidsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_cancelled_total",
		Help: "Total number of cancelled bids",
	})

	BidsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_failed_total",
		Help: "Total number of failed bid actions",
	}, []string{"reason"})

	EscrowLockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_locked_total",
		Help: "Total number of escrow locks applied",
	})

	EscrowReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_released_total",
		Help: "Total number of escrow releases applied",
	})

	EscrowRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_refunded_total",
		Help: "Total number of escrow refunds applied",
	})

	EscrowFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_failed_total",
		Help: "Total number of failed escrow actions",
	}, []string{"reason"})

	EventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_events_ingested_total",
		Help: "Total number of inbound marketplace events applied",
	}, []string{"action"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_events_dropped_total",
		Help: "Total number of inbound marketplace events dropped",
	}, []string{"reason"})

	SmsgSendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smsg_send_latency_seconds",
		Help:    "Latency of outbound secure-message delivery",
		Buckets: prometheus.DefBuckets,
	})

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
