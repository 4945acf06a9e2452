package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the simulator collectors. Each instance owns its registry so
// tests and reloads never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	NoMatchTotal      *prometheus.CounterVec
	SimulatedTimeouts *prometheus.CounterVec
	ReloadsTotal      *prometheus.CounterVec
	LoadedCalls       prometheus.Gauge
	ActiveRequests    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicesim_requests_total",
				Help: "Total requests served, by method, call and status code.",
			},
			[]string{"method", "call", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "servicesim_request_duration_seconds",
				Help:    "Duration of simulated requests in seconds, simulated timeouts included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "call"},
		),

		NoMatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicesim_no_match_total",
				Help: "Requests answered with the fixed 500, by what failed to match.",
			},
			[]string{"kind"},
		),

		SimulatedTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicesim_simulated_timeouts_total",
				Help: "Responses delayed by timeout simulation.",
			},
			[]string{"call"},
		),

		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicesim_reloads_total",
				Help: "Definition reloads, by result.",
			},
			[]string{"result"},
		),

		LoadedCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servicesim_loaded_calls",
			Help: "Number of calls in the active registry.",
		}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servicesim_active_requests",
			Help: "Number of requests being processed.",
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.NoMatchTotal,
		m.SimulatedTimeouts,
		m.ReloadsTotal,
		m.LoadedCalls,
		m.ActiveRequests,
	)
	return m
}

// ObserveRequest records one answered request. call is empty when no call
// matched; miss is empty when a response was produced.
func (m *Metrics) ObserveRequest(method, call string, status int, miss string, delay, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, call, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, call).Observe(elapsed.Seconds())
	if miss != "" {
		m.NoMatchTotal.WithLabelValues(miss).Inc()
	}
	if delay > 0 {
		m.SimulatedTimeouts.WithLabelValues(call).Inc()
	}
}

// ObserveReload records a reload attempt and, on success, the new call count.
func (m *Metrics) ObserveReload(err error, calls int) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ReloadsTotal.WithLabelValues("ok").Inc()
	m.LoadedCalls.Set(float64(calls))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
