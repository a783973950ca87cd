package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	operationDuration *prometheus.HistogramVec
	serverStarts      *prometheus.CounterVec
	serverStops       *prometheus.CounterVec
	registeredServers prometheus.Gauge
	runningServers    prometheus.Gauge
	eventsPublished   *prometheus.CounterVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpreg_operation_duration_seconds",
				Help:    "Duration of registry service operations in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "status"},
		),
		serverStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpreg_server_starts_total",
				Help: "Total number of server start attempts",
			},
			[]string{"result"},
		),
		serverStops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpreg_server_stops_total",
				Help: "Total number of server stop attempts",
			},
			[]string{"result"},
		),
		registeredServers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpreg_registered_servers",
				Help: "Current number of registered servers",
			},
		),
		runningServers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpreg_running_servers",
				Help: "Current number of servers in running status",
			},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpreg_events_published_total",
				Help: "Total number of server events published",
			},
			[]string{"type"},
		),
	}
}

func (m *PrometheusMetrics) ObserveOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) IncStart(result string) {
	if m == nil {
		return
	}
	m.serverStarts.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) IncStop(result string) {
	if m == nil {
		return
	}
	m.serverStops.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) SetRegistered(count int) {
	if m == nil {
		return
	}
	m.registeredServers.Set(float64(count))
}

func (m *PrometheusMetrics) SetRunning(count int) {
	if m == nil {
		return
	}
	m.runningServers.Set(float64(count))
}

func (m *PrometheusMetrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}
