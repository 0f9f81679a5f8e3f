package infra

import (
	"context"

	"service-guard/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore exporta as decisões como contadores.
// Labels: type e outcome (allowed|denied|fail_open). Identidade não vira label.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "service_guard",
		Subsystem: "rate_limit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions by limit type and outcome.",
	}, []string{"type", "outcome"})
	if reg != nil {
		if err := reg.Register(decisions); err != nil {
			return nil, err
		}
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := "denied"
	switch {
	case ev.Allowed && ev.FailOpen:
		outcome = "fail_open"
	case ev.Allowed:
		outcome = "allowed"
	}
	s.decisions.WithLabelValues(string(ev.LimitType), outcome).Inc()
	return nil
}
