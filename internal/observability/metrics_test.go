package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveEnqueue("catalog:low_stock_alert", nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "odyssey_jobs_enqueued_total") {
		t.Fatalf("expected body to contain odyssey_jobs_enqueued_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestObserveLedger(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveLedger("sale", decimal.RequireFromString("121.00"), nil)
	metrics.ObserveLedger("sale", decimal.RequireFromString("5"), fmt.Errorf("short: %w", shared.ErrValidation))
	metrics.ObserveLedger("purchase", decimal.Zero, errors.New("db down"))

	body := scrape(t, metrics)
	for _, want := range []string{
		`odyssey_ledger_operations_total{ledger="sale",outcome="ok"} 1`,
		`odyssey_ledger_operations_total{ledger="sale",outcome="rejected"} 1`,
		`odyssey_ledger_operations_total{ledger="purchase",outcome="error"} 1`,
		`odyssey_ledger_amount_total{ledger="sale"} 121`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveLedger("sale", decimal.Zero, nil)
	metrics.ObserveEnqueue("x", nil)
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
