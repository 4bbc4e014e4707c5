package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(confirmationsTotal)
}

// Outcome labels: granted, duplicate, declined, tampered, coupon_exhausted,
// transient_error. "tampered" is tracked separately from ordinary failures
// so amount-mismatch signals can be reviewed later.
var confirmationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Payment confirmation attempts by outcome.",
	},
	[]string{"outcome"},
)

func IncConfirmation(outcome string) {
	confirmationsTotal.WithLabelValues(norm(outcome)).Inc()
}
