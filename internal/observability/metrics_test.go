package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/odyssey-erp/revrec/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesRunMetrics(t *testing.T) {
	metrics := NewMetrics()
	runs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = runs.Track("revrec_run").End(nil)
	runs.AddEntries("revenue", 2)

	body := scrape(t, metrics)
	if !strings.Contains(body, `revrec_runs_total{job="revrec_run",status="success"} 1`) {
		t.Fatalf("expected run counter, got: %s", body)
	}
	if !strings.Contains(body, `revrec_ledger_entries_total{kind="revenue"} 2`) {
		t.Fatalf("expected entry counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/v1/contracts/{contractID}/run")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/c1/run", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `revrec_http_requests_total{code="418",method="POST",route="/api/v1/contracts/{contractID}/run"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `revrec_http_request_duration_seconds_bucket{route="/api/v1/contracts/{contractID}/run"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
	if !strings.Contains(body, "revrec_http_requests_in_flight 0") {
		t.Fatalf("expected in-flight gauge back at zero, got: %s", body)
	}
}

func TestMetricsMiddlewareDefaultsStatusAndRoute(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	body := scrape(t, metrics)
	if !strings.Contains(body, `revrec_http_requests_total{code="200",method="GET",route="unmatched"} 1`) {
		t.Fatalf("expected unmatched route with implicit 200, got: %s", body)
	}
}

func TestNilMetricsIsUnavailable(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
