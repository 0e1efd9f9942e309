package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts rendered gate decisions per route and outcome
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics registers the decision counter with reg (nil means the default registerer)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prophub",
				Name:      "access_decisions_total",
				Help:      "Access gate decisions by route and outcome",
			},
			[]string{"route", "outcome"},
		),
	}
}

// Observe records one decision. A nil receiver records nothing.
func (m *Metrics) Observe(route string, outcome Outcome) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(route, outcome.String()).Inc()
}
