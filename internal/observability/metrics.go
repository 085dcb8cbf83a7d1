package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tikiti_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tikiti_bookings_created_total",
			Help: "Bookings created, labelled by whether inventory was reserved",
		},
		[]string{"outcome"},
	)

	PaymentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tikiti_payment_resolutions_total",
			Help: "Pending payments driven to a terminal state",
		},
		[]string{"outcome", "source"},
	)

	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tikiti_tickets_issued_total",
			Help: "Tickets issued for confirmed bookings",
		},
	)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tikiti_gateway_requests_total",
			Help: "Push-payment gateway requests by result",
		},
		[]string{"result"},
	)

	IssuanceInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tikiti_issuance_inconsistencies_total",
			Help: "Confirmed bookings that failed ticket issuance and need remediation",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tikiti_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tikiti_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tikiti_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
