package inventory_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/shared"
)

func newLotRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), staff)))
		})
	})
	inventory.NewHandler(slog.New(slog.DiscardHandler), f.svc).MountRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRegisterAndAdjust(t *testing.T) {
	f := newFixture(t)
	router := newLotRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/lots", map[string]any{
		"product_id":  f.product.ID,
		"quantity":    10,
		"expiry_date": "2026-03-31",
		"location":    "A-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lot inventory.Lot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lot))
	assert.Equal(t, inventory.GradeCaution, lot.Grade)

	rec = doJSON(t, router, http.MethodPost, "/lots/"+itoa(lot.ID)+"/adjustments", map[string]any{
		"change_quantity": -11,
		"reason":          "LOST",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "INSUFFICIENT_STOCK", problem.Code)

	rec = doJSON(t, router, http.MethodPost, "/lots/"+itoa(lot.ID)+"/adjustments", map[string]any{
		"change_quantity": 2,
		"reason":          "INBOUND",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/lots/"+itoa(lot.ID)+"/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recon inventory.Reconciliation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recon))
	assert.True(t, recon.Balanced)
}

func TestHandlerUnknownLot(t *testing.T) {
	f := newFixture(t)
	rec := doJSON(t, newLotRouter(f), http.MethodGet, "/lots/404", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "urn:backoffice:problem:unknown-lot")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHandlerRejectsMalformedDates(t *testing.T) {
	f := newFixture(t)
	router := newLotRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/lots", map[string]any{
		"product_id":  f.product.ID,
		"quantity":    5,
		"expiry_date": "2026-02-30",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/lots", map[string]any{
		"product_id":   f.product.ID,
		"quantity":     5,
		"expiry_date":  "2026-06-30",
		"inbound_date": "03/01/2026",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Empty(t, f.store.Lots(f.product.ID))

	lot := f.register(t, 5, 100)
	rec = doJSON(t, router, http.MethodPatch, "/lots/"+itoa(lot.ID), map[string]any{"expiry_date": "next week"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "INVALID_INPUT", problem.Code)

	stored, err := f.svc.GetLot(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExpiryDate.Equal(lot.ExpiryDate))
}

func TestHandlerListLotsByKeyword(t *testing.T) {
	f := newFixture(t)
	router := newLotRouter(f)
	lot := f.register(t, 5, 100)
	f.register(t, 3, 200)

	rec := doJSON(t, router, http.MethodGet, "/lots?q=ginseng", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Lots []inventory.LotView `json:"lots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Lots, 2)

	rec = doJSON(t, router, http.MethodGet, "/lots?q="+lot.LotNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body.Lots = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Lots, 1)
	assert.Equal(t, lot.ID, body.Lots[0].ID)
}

func TestHandlerBulkDeleteReportsProgress(t *testing.T) {
	f := newFixture(t)
	router := newLotRouter(f)
	first := f.register(t, 5, 100)
	last := f.register(t, 3, 200)

	rec := doJSON(t, router, http.MethodPost, "/lots/bulk-delete", map[string]any{
		"lot_ids": []int64{first.ID, 9999, last.ID},
	})
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "UNKNOWN_LOT", problem.Code)
	assert.Equal(t, []any{float64(first.ID)}, problem.Extensions["completed"])
	assert.Equal(t, float64(9999), problem.Extensions["failed_id"])
	assert.Equal(t, []any{float64(last.ID)}, problem.Extensions["remaining"])

	rec = doJSON(t, router, http.MethodPost, "/lots/bulk-delete", map[string]any{"lot_ids": []int64{last.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result inventory.BulkDeleteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []int64{last.ID}, result.Deleted)

	rec = doJSON(t, router, http.MethodPost, "/lots/bulk-delete", map[string]any{"lot_ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
