package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(lockAcquisitionsTotal) }

// Result labels: acquired (first try), contended (acquired after waiting),
// busy (gave up).
var lockAcquisitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_lock_acquisitions_total",
		Help: "Checkout lock acquisition outcomes.",
	},
	[]string{"result"},
)

func IncLockAcquisition(result string) {
	lockAcquisitionsTotal.WithLabelValues(norm(result)).Inc()
}
