package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerTotal     *prometheus.CounterVec
	ledgerAmount    *prometheus.CounterVec
	enqueued        *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ledger := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_operations_total",
		Help: "Purchases and sales attempted, by ledger and outcome.",
	}, []string{"ledger", "outcome"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_amount_total",
		Help: "Sum of committed ledger totals.",
	}, []string{"ledger"})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_enqueued_total",
		Help: "Background tasks submitted by the API, by task and outcome.",
	}, []string{"task", "outcome"})
	registry.MustRegister(requests, duration, ledger, amount, enqueued)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ledgerTotal:     ledger,
		ledgerAmount:    amount,
		enqueued:        enqueued,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveLedger records one purchase or sale attempt. total is only counted on success.
func (m *Metrics) ObserveLedger(ledger string, total decimal.Decimal, err error) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	m.ledgerTotal.WithLabelValues(ledger, outcome).Inc()
	if outcome == OutcomeOK {
		m.ledgerAmount.WithLabelValues(ledger).Add(total.InexactFloat64())
	}
}

// ObserveEnqueue records one attempt to submit a background task.
func (m *Metrics) ObserveEnqueue(task string, err error) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(task, Outcome(err)).Inc()
}

// Outcome classifies err into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrDuplicate),
		errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrConflict):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
