// Package observability registers process-wide Prometheus metrics for the
// conversation service.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type serviceMetrics struct {
	sessionsStarted *prometheus.CounterVec
	activeSessions  prometheus.Gauge

	stepsRecorded *prometheus.CounterVec

	loopRuns        *prometheus.CounterVec
	loopRunDuration *prometheus.HistogramVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	streamClients prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *serviceMetrics
)

func getMetrics() *serviceMetrics {
	metricsOnce.Do(func() {
		m := &serviceMetrics{
			sessionsStarted: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conversation_sessions_started_total",
					Help: "Total conversation sessions started by provider.",
				},
				[]string{"provider"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "conversation_sessions_active",
					Help: "Sessions currently held in the registry.",
				},
			),
			stepsRecorded: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conversation_steps_recorded_total",
					Help: "Total steps recorded by type and terminal status.",
				},
				[]string{"type", "status"},
			),
			loopRuns: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sampling_loop_runs_total",
					Help: "Total sampling loop invocations by provider and outcome.",
				},
				[]string{"provider", "status"},
			),
			loopRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "sampling_loop_run_duration_seconds",
					Help:    "Sampling loop run duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			httpRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total HTTP requests by method, route and status code.",
				},
				[]string{"method", "route", "code"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds by method and route.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route"},
			),
			streamClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "stream_clients_connected",
					Help: "Connected step-stream websocket clients.",
				},
			),
		}

		prometheus.MustRegister(
			m.sessionsStarted,
			m.activeSessions,
			m.stepsRecorded,
			m.loopRuns,
			m.loopRunDuration,
			m.httpRequests,
			m.httpRequestDuration,
			m.streamClients,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call from every
// package that records metrics.
func EnsureRegistered() {
	getMetrics()
}

// RecordSessionStarted counts a new session for a provider.
func RecordSessionStarted(provider string) {
	getMetrics().sessionsStarted.WithLabelValues(provider).Inc()
}

// SetActiveSessions updates the registry size gauge.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordStep counts a step that reached a terminal status.
func RecordStep(stepType, status string) {
	getMetrics().stepsRecorded.WithLabelValues(stepType, status).Inc()
}

// RecordLoopRun records one sampling loop invocation.
func RecordLoopRun(provider string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	getMetrics().loopRuns.WithLabelValues(provider, status).Inc()
	getMetrics().loopRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	getMetrics().httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	getMetrics().httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// AddStreamClients adjusts the connected websocket client gauge.
func AddStreamClients(delta int) {
	getMetrics().streamClients.Add(float64(delta))
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}
