package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jzx17/goretry/pkg/types"
)

// MetricsListener records retry events as Prometheus metrics
type MetricsListener struct {
	attempts       *prometheus.CounterVec
	errors         *prometheus.CounterVec
	closed         *prometheus.CounterVec
	seriesAttempts *prometheus.HistogramVec
}

// NewMetricsListener registers retry metrics on reg (the default registerer when nil)
func NewMetricsListener(reg prometheus.Registerer) *MetricsListener {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsListener{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goretry",
				Subsystem: "executor",
				Name:      "attempts_total",
				Help:      "Total number of attempts opened",
			},
			[]string{"label"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goretry",
				Subsystem: "executor",
				Name:      "retryable_errors_total",
				Help:      "Total number of retryable failures by error kind",
			},
			[]string{"label", "kind"},
		),
		closed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goretry",
				Subsystem: "executor",
				Name:      "series_closed_total",
				Help:      "Total number of retry series closed by outcome",
			},
			[]string{"label", "outcome"},
		),
		seriesAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "goretry",
				Subsystem: "executor",
				Name:      "series_attempts",
				Help:      "Attempts made by a retry series before it closed",
				Buckets:   []float64{1, 2, 3, 5, 8, 13},
			},
			[]string{"label"},
		),
	}
}

// OnOpen implements RetryListener
func (m *MetricsListener) OnOpen(rc *RetryContext) bool {
	m.attempts.WithLabelValues(rc.Label()).Inc()
	return true
}

// OnError implements RetryListener
func (m *MetricsListener) OnError(rc *RetryContext, err error) {
	m.errors.WithLabelValues(rc.Label(), types.KindOf(err).String()).Inc()
}

// OnClose implements RetryListener
func (m *MetricsListener) OnClose(rc *RetryContext, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.closed.WithLabelValues(rc.Label(), outcome).Inc()
	m.seriesAttempts.WithLabelValues(rc.Label()).Observe(float64(rc.AttemptCount()))
}

// RegisterCacheMetrics exposes the size of cache as a gauge and returns an
// EvictCallback counting evictions
func RegisterCacheMetrics(reg prometheus.Registerer, name string, cache func() RetryContextCache) EvictCallback {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "goretry",
			Subsystem:   "cache",
			Name:        "contexts",
			Help:        "Number of stateful retry contexts currently cached",
			ConstLabels: prometheus.Labels{"cache": name},
		},
		func() float64 {
			if c := cache(); c != nil {
				return float64(c.Len())
			}
			return 0
		},
	)

	evictions := factory.NewCounter(prometheus.CounterOpts{
		Namespace:   "goretry",
		Subsystem:   "cache",
		Name:        "evictions_total",
		Help:        "Number of stateful retry contexts evicted before completion",
		ConstLabels: prometheus.Labels{"cache": name},
	})

	return func(StateKey, *RetryContext) {
		evictions.Inc()
	}
}
