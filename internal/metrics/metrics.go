package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "tacbridge"

	ResultOK        = "ok"
	ResultRejected  = "rejected"
	ResultReentrant = "reentrant"
	ResultOverflow  = "overflow"
	ResultError     = "error"
)

// Metrics groups the collectors of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	conversions     *prometheus.CounterVec
	convertDuration *prometheus.HistogramVec
	sourceUnits     prometheus.Counter
	targetUnits     prometheus.Counter
	published       prometheus.Counter
	publishErrors   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "conversions_total",
				Help:      "The total number of conversion attempts partitioned by result",
			},
			[]string{"result"},
		),
		convertDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "convert_duration_seconds",
				Help:      "Time spent in a conversion attempt partitioned by result",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		sourceUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "source_units_total",
			Help:      "Source units taken into custody by committed conversions",
		}),
		targetUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "target_units_total",
			Help:      "Target units recorded by committed conversions",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "events_published_total",
			Help:      "Conversion events published from the outbox",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish a conversion event",
		}),
	}

	reg.MustRegister(
		m.conversions,
		m.convertDuration,
		m.sourceUnits,
		m.targetUnits,
		m.published,
		m.publishErrors,
	)

	return m
}

func (m *Metrics) ObserveConversion(result string, source, target uint64, d time.Duration) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(result).Inc()
	m.convertDuration.WithLabelValues(result).Observe(d.Seconds())
	if result == ResultOK {
		m.sourceUnits.Add(float64(source))
		m.targetUnits.Add(float64(target))
	}
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishErrors.Inc()
		return
	}
	m.published.Inc()
}
