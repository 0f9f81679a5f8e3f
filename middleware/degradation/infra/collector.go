package infra

import (
	"service-guard/middleware/degradation/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// StatusSource é o que o Collector lê a cada scrape.
type StatusSource interface {
	Status() domain.Status
}

// Collector exporta o Status do gerenciador sem manter estado próprio.
type Collector struct {
	src StatusSource

	level     *prometheus.Desc
	depUp     *prometheus.Desc
	ops       *prometheus.Desc
	cacheSize *prometheus.Desc
	hitRate   *prometheus.Desc
}

func NewCollector(src StatusSource) *Collector {
	ns := "service_guard_degradation_"
	return &Collector{
		src:       src,
		level:     prometheus.NewDesc(ns+"service_level", "Current service level (0 unknown, 1 full ... 5 unavailable).", nil, nil),
		depUp:     prometheus.NewDesc(ns+"dependency_up", "1 if the dependency was available at the last health check.", []string{"dependency"}, nil),
		ops:       prometheus.NewDesc(ns+"operations_total", "Executed operations by result.", []string{"result"}, nil),
		cacheSize: prometheus.NewDesc(ns+"cache_entries", "Live entries in the fallback cache.", nil, nil),
		hitRate:   prometheus.NewDesc(ns+"cache_hit_ratio", "Fallback operations over all successful operations.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.level
	ch <- c.depUp
	ch <- c.ops
	ch <- c.cacheSize
	ch <- c.hitRate
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Status()

	ch <- prometheus.MustNewConstMetric(c.level, prometheus.GaugeValue, float64(st.ServiceLevel))
	for name, s := range st.Dependencies {
		up := 0.0
		if s == domain.StatusAvailable {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.depUp, prometheus.GaugeValue, up, name)
	}
	ch <- prometheus.MustNewConstMetric(c.ops, prometheus.CounterValue, float64(st.SuccessfulOps), "successful")
	ch <- prometheus.MustNewConstMetric(c.ops, prometheus.CounterValue, float64(st.FallbackOps), "fallback")
	ch <- prometheus.MustNewConstMetric(c.ops, prometheus.CounterValue, float64(st.FailedOps), "failed")
	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(st.CacheSize))
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, st.CacheHitRate)
}
