package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(couponApplicationsTotal)
}

// Result labels: applied, degraded (expired/exhausted at pricing time),
// unknown (code not found).
var couponApplicationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coupon_applications_total",
		Help: "Coupon pricing attempts by result.",
	},
	[]string{"result"},
)

func IncCouponApplication(result string) {
	couponApplicationsTotal.WithLabelValues(norm(result)).Inc()
}
