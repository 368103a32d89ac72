package metrics_test

import (
	"testing"

	"github.com/mobilebackend/cloudbackend.go/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.PushReceived("query")
		m.PushDropped(metrics.ReasonMalformed)
		m.Reexecuted()
		m.CallFailed("list")
		m.Delivered(3)
		m.WatermarkAdvanced()
		m.SetContinuousQueries(1)
	})
}

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := metrics.New(reg)

	m.PushReceived("query")
	m.PushReceived("query")
	m.PushDropped(metrics.ReasonUnknownQuery)
	m.Delivered(3)
	m.SetContinuousQueries(2)

	count, err := testutil.GatherAndCount(reg, "cloudbackend_push_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["cloudbackend_push_received_total"])
	assert.Equal(t, 3.0, values["cloudbackend_messaging_delivered_messages_total"])
	assert.Equal(t, 1.0, values["cloudbackend_messaging_delivered_batches_total"])
	assert.Equal(t, 2.0, values["cloudbackend_query_continuous"])
}
