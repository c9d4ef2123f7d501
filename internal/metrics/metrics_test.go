package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v-starostin/tacbridge/internal/metrics"
)

func counters(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
		}
	}
	return values
}

func TestObserveConversion(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveConversion(metrics.ResultOK, 10, 1000, time.Millisecond)
	m.ObserveConversion(metrics.ResultRejected, 5, 0, time.Millisecond)

	values := counters(t, reg)
	assert.Equal(t, 2.0, values["tacbridge_bridge_conversions_total"])
	assert.Equal(t, 10.0, values["tacbridge_bridge_source_units_total"])
	assert.Equal(t, 1000.0, values["tacbridge_bridge_target_units_total"])
}

func TestObservePublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObservePublish(nil)
	m.ObservePublish(nil)
	m.ObservePublish(errors.New("broker down"))

	values := counters(t, reg)
	assert.Equal(t, 2.0, values["tacbridge_broadcaster_events_published_total"])
	assert.Equal(t, 1.0, values["tacbridge_broadcaster_publish_errors_total"])
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveConversion(metrics.ResultOK, 1, 100, time.Second)
		m.ObservePublish(nil)
	})
}
