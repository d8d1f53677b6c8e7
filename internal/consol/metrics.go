package consol

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes the report cache.
type Metrics struct {
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the cache collectors. Collectors already registered
// under the same names are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holdco_consol_cache_hits_total",
			Help: "Number of cache hits for consolidated reports.",
		}, []string{"report", "group"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holdco_consol_cache_miss_total",
			Help: "Number of cache misses for consolidated reports.",
		}, []string{"report", "group"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "holdco_consol_build_duration_seconds",
			Help:    "Duration required to build consolidated reports.",
			Buckets: prometheus.DefBuckets,
		}, []string{"report", "group"}),
	}
	if err := register(reg, &m.hits); err != nil {
		return nil, err
	}
	if err := register(reg, &m.misses); err != nil {
		return nil, err
	}
	if err := register(reg, &m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector *T) error {
	err := reg.Register(*collector)
	if err == nil {
		return nil
	}
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return err
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("consol metrics: unexpected collector type %T", already.ExistingCollector)
	}
	*collector = existing
	return nil
}

func (m *Metrics) observe(report string, groupID int64, hit bool, took time.Duration) {
	if m == nil {
		return
	}
	group := strconv.FormatInt(groupID, 10)
	if hit {
		m.hits.WithLabelValues(report, group).Inc()
		return
	}
	m.misses.WithLabelValues(report, group).Inc()
	m.duration.WithLabelValues(report, group).Observe(took.Seconds())
}
