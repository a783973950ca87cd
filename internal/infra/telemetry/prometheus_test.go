package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	assert.NotNil(t, m)
	assert.NotNil(t, m.operationDuration)
	assert.NotNil(t, m.serverStarts)
	assert.NotNil(t, m.serverStops)
	assert.NotNil(t, m.registeredServers)
	assert.NotNil(t, m.runningServers)
	assert.NotNil(t, m.eventsPublished)
}

func TestPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveOperation("registry.createServer", "ok", 10*time.Millisecond)
	m.IncStart("success")
	m.IncStop("failure")
	m.SetRegistered(3)
	m.SetRunning(1)
	m.IncEvent("created")

	metrics, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(metrics))
	for _, family := range metrics {
		names = append(names, family.GetName())
	}

	assert.Contains(t, names, "mcpreg_operation_duration_seconds")
	assert.Contains(t, names, "mcpreg_server_starts_total")
	assert.Contains(t, names, "mcpreg_server_stops_total")
	assert.Contains(t, names, "mcpreg_registered_servers")
	assert.Contains(t, names, "mcpreg_running_servers")
	assert.Contains(t, names, "mcpreg_events_published_total")
}

func TestPrometheusMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *PrometheusMetrics
	m.ObserveOperation("op", "ok", time.Millisecond)
	m.IncStart("success")
	m.IncStop("success")
	m.SetRegistered(0)
	m.SetRunning(0)
	m.IncEvent("created")
}
