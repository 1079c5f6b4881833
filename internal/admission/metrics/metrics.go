package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AdmissionDecisions *prometheus.CounterVec
	TrackedKeys        prometheus.Gauge
	SweptEntries       prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AdmissionDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "spendgate_admission_decisions_total",
			Help: "Total admission decisions by policy and outcome",
		}, []string{"policy", "outcome"}),
		TrackedKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "spendgate_admission_tracked_keys",
			Help: "Current number of tracked rate limit windows",
		}),
		SweptEntries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spendgate_admission_swept_entries_total",
			Help: "Total expired rate limit windows removed by the sweeper",
		}),
	}
}

func (m *Metrics) ObserveDecision(policy string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.AdmissionDecisions.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) SetTrackedKeys(n int) {
	m.TrackedKeys.Set(float64(n))
}

func (m *Metrics) AddSweptEntries(n int) {
	m.SweptEntries.Add(float64(n))
}
