package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/install-monitor/internal/application/dto"
)

const namespace = "install_monitor"

// Metrics bundles prometheus collectors used by the service.
// It implements port.ProbeObserver and port.TicketObserver.
type Metrics struct {
	registry *prometheus.Registry

	ProbesTotal        *prometheus.CounterVec
	ProbeDurationSec   *prometheus.HistogramVec
	LastProbeSuccess   *prometheus.GaugeVec
	TicketsCreated     *prometheus.CounterVec
	TicketsSkipped     *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of probe runs by monitor and outcome.",
		}, []string{"monitor", "kind", "outcome"}),
		ProbeDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Probe duration in seconds, including ingestion.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"monitor", "kind"}),
		LastProbeSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_last_success",
			Help:      "1 if the last probe of the monitor succeeded, 0 otherwise.",
		}, []string{"monitor"}),
		TicketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_created_total",
			Help:      "Total number of incident tickets created.",
		}, []string{"monitor"}),
		TicketsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_skipped_total",
			Help:      "Total number of alert evaluations that did not open a ticket.",
		}, []string{"reason"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of auth failures.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_dropped_total",
			Help:      "Total number of requests dropped by rate limiter.",
		}),
	}

	registry.MustRegister(
		m.ProbesTotal,
		m.ProbeDurationSec,
		m.LastProbeSuccess,
		m.TicketsCreated,
		m.TicketsSkipped,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveProbe(_ context.Context, outcome dto.ProbeOutcomeDTO) {
	m.ProbesTotal.WithLabelValues(outcome.MonitorName, outcome.Kind, outcome.Outcome()).Inc()
	m.ProbeDurationSec.WithLabelValues(outcome.MonitorName, outcome.Kind).Observe(outcome.Duration.Seconds())

	last := 0.0
	if outcome.Succeeded {
		last = 1
	}
	m.LastProbeSuccess.WithLabelValues(outcome.MonitorName).Set(last)
}

func (m *Metrics) TicketCreated(_ context.Context, event dto.IncidentCreatedEventDTO) {
	m.TicketsCreated.WithLabelValues(event.MonitorName).Inc()
}

func (m *Metrics) EvaluationSkipped(_ context.Context, skipped dto.SkippedEvaluationDTO) {
	m.TicketsSkipped.WithLabelValues(skipped.Reason).Inc()
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded.
func normalizeRoute(path string) string {
	switch {
	case path == "/healthz", path == "/readyz", path == "/metrics", path == "/ws/probes":
		return path
	case path == "/api/v1/alerts/grafana":
		return path
	case path == "/api/v1/monitors":
		return path
	case strings.HasPrefix(path, "/api/v1/monitors/") && strings.HasSuffix(path, "/run"):
		return "/api/v1/monitors/{name}/run"
	case path == "/api/v1" || strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
