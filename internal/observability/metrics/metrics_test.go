package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallMetricsObserve(t *testing.T) {
	m := NewCallMetrics(prometheus.NewRegistry())
	m.ObserveCallPlaced("placed")
	m.ObserveIntakeStep("collect_symptoms", "ok")
	m.ObserveWebhookEvent("completed")
	m.ObserveWebhookLatency("status", 0.2)
}

func TestCallMetricsCounterValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)
	m.ObserveCallPlaced("rejected")
	m.ObserveCallPlaced("rejected")

	families, err := reg.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "healthmatch_emergency_calls_placed_total" {
			found = mf
		}
	}
	require.NotNil(t, found, "calls_placed_total not registered")
	require.Len(t, found.GetMetric(), 1)
	assert.Equal(t, float64(2), found.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "rejected", found.GetMetric()[0].GetLabel()[0].GetValue())
}

func TestCallMetricsNilSafe(t *testing.T) {
	var m *CallMetrics
	m.ObserveCallPlaced("placed")
	m.ObserveIntakeStep("step", "ok")
	m.ObserveWebhookEvent("failed")
	m.ObserveWebhookLatency("status", 0.1)
}
