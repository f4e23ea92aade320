// Package metrics exposes prometheus counters for the reservation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Gateway webhook events by kind and result.",
	}, []string{"kind", "result"})

	PromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waitlist_promotions_total",
		Help: "Waitlist promotion cycles by outcome.",
	}, []string{"outcome"})

	GatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Duration of outbound payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
