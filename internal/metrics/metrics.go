// README: Prometheus collectors for the delivery core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PartnerClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freshcart_partner_claims_total",
		Help: "Partner claim attempts by result (claimed, conflict, none).",
	}, []string{"result"})

	StaleAssignmentsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freshcart_stale_assignments_reclaimed_total",
		Help: "Partners released by the stale assignment sweep.",
	})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freshcart_order_transitions_total",
		Help: "Successful order lifecycle transitions by target status.",
	}, []string{"to"})

	OTPFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freshcart_delivery_otp_failures_total",
		Help: "Delivery OTP verifications that did not match.",
	})

	ETAComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "freshcart_eta_computations_total",
		Help: "ETA estimates by source (route, fallback).",
	}, []string{"source"})

	RouteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "freshcart_route_request_duration_seconds",
		Help:    "Latency of directions service calls.",
		Buckets: prometheus.DefBuckets,
	})

	StaleETADiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freshcart_eta_stale_discarded_total",
		Help: "ETA results dropped because a newer sample was already applied.",
	})

	ProximityAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "freshcart_proximity_alerts_total",
		Help: "Almost-there notifications sent.",
	})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "freshcart_feed_subscribers",
		Help: "Connected live partner feed subscribers.",
	})
)
