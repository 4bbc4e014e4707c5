package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(enrollmentsTotal)
}

var enrollmentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "enrollments_total",
		Help: "Enrollments granted by access path (free/paid/audit).",
	},
	[]string{"path"},
)

func IncEnrollment(path string) {
	enrollmentsTotal.WithLabelValues(norm(path)).Inc()
}
