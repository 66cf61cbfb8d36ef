package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maluguiro/examen-proctor/internal/domain"
)

// Metrics exposes lifecycle and HTTP counters on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	attemptsStarted   *prometheus.CounterVec
	penalties         *prometheus.CounterVec
	attemptsFinalized *prometheus.CounterVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attemptsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_attempts_started_total",
				Help: "Attempts started per exam",
			},
			[]string{"exam_id"},
		),
		penalties: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_penalty_events_total",
				Help: "Recorded violations by normalized tag",
			},
			[]string{"tag", "penalized"},
		),
		attemptsFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_attempts_finalized_total",
				Help: "Attempts that left in_progress, by reason",
			},
			[]string{"reason"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}
	m.registry.MustRegister(
		m.attemptsStarted,
		m.penalties,
		m.attemptsFinalized,
		m.requests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) AttemptStarted(examID string) {
	m.attemptsStarted.WithLabelValues(examID).Inc()
}

func (m *Metrics) PenaltyRecorded(tag string, penalized bool) {
	m.penalties.WithLabelValues(tag, strconv.FormatBool(penalized)).Inc()
}

func (m *Metrics) AttemptFinalized(reason domain.EndReason) {
	m.attemptsFinalized.WithLabelValues(string(reason)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
