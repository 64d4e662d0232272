package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	tracker := metrics.Jobs().Track("inventory:lot_regrade")
	require.NoError(t, tracker.End(nil))
	metrics.Jobs().AddRegraded(3)

	body := scrape(t, metrics)
	assert.Contains(t, body, `backoffice_jobs_total{job="inventory:lot_regrade",status="success"} 1`)
	assert.Contains(t, body, "backoffice_lot_regrade_changed_total 3")
}

func TestTrackerCountsFailures(t *testing.T) {
	metrics := NewMetrics()
	boom := errors.New("boom")
	err := metrics.Jobs().Track("notify:order_status").End(boom)
	require.ErrorIs(t, err, boom)

	body := scrape(t, metrics)
	assert.Contains(t, body, `backoffice_jobs_failures_total{job="notify:order_status"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `backoffice_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `backoffice_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveTransition("create_shipment", "SHIPPED")
	metrics.ObserveTransition("create_shipment", "SHIPPED")
	metrics.ObserveAdjustment("DAMAGED")

	body := scrape(t, metrics)
	assert.Contains(t, body, `backoffice_order_transitions_total{event="create_shipment",to="SHIPPED"} 2`)
	assert.Contains(t, body, `backoffice_lot_adjustments_total{reason="DAMAGED"} 1`)
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveTransition("confirm_payment", "PREPARING")
	assert.Nil(t, metrics.Jobs())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
