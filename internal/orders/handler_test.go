package orders_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/clients"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/shared"
	"github.com/age-b2b/backoffice/internal/testing/memstore"
)

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memIdempotency) Claim(_ context.Context, key, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[scope+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[scope+"/"+key] = true
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope+"/"+key)
	return nil
}

type httpFixture struct {
	router  http.Handler
	store   *memstore.Store
	product catalog.Product
	client  clients.Client
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	store := memstore.New()
	product := store.AddProduct(catalog.Product{Code: "A-001", Name: "Aloe Cream", SupplyPrice: decimal.NewFromInt(1000)})
	client := store.AddClient(clients.Client{BusinessName: "Seoul Beauty Co.", DeliveryDefaults: clients.DeliveryDefaults{ReceiverName: "Kim", Address: "1 Teheran-ro"}})
	now := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	stock := inventory.NewService(store.Inventory(), store, nil, nil, inventory.ServiceConfig{Now: now})
	svc := orders.NewService(store.Orders(), store, store, stock.Allocator(), orders.ServiceConfig{Now: now})
	h := orders.NewHandler(slog.New(slog.DiscardHandler), svc, &memIdempotency{keys: map[string]bool{}})

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(principalFromHeader)
		h.MountClientRoutes(r)
		r.Route("/admin", h.MountStaffRoutes)
	})
	return &httpFixture{router: r, store: store, product: product, client: client}
}

// principalFromHeader stands in for session authentication in handler tests.
func principalFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.Header.Get("X-Test-ID"), 10, 64)
		p := shared.ClientPrincipal(id)
		if r.Header.Get("X-Test-Kind") == "staff" {
			p = shared.StaffPrincipal(id)
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

func (f *httpFixture) do(t *testing.T, p shared.Principal, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-ID", strconv.FormatInt(p.ID, 10))
	req.Header.Set("X-Test-Kind", string(p.Kind))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandlerPlaceOrderIsIdempotent(t *testing.T) {
	f := newHTTPFixture(t)
	client := shared.ClientPrincipal(f.client.ID)
	body := map[string]any{"items": []map[string]any{{"product_id": f.product.ID, "quantity": 2}}}

	rec := f.do(t, client, http.MethodPost, "/api/orders", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, orders.StatusPending, order.Status)

	rec = f.do(t, client, http.MethodPost, "/api/orders", body, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, client, http.MethodPost, "/api/orders", map[string]any{"items": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDistinguishesRefusals(t *testing.T) {
	f := newHTTPFixture(t)
	client := shared.ClientPrincipal(f.client.ID)
	staff := shared.StaffPrincipal(1)
	body := map[string]any{"items": []map[string]any{{"product_id": f.product.ID, "quantity": 2}}}
	rec := f.do(t, client, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var order orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	base := "/api/admin/orders/" + strconv.FormatInt(order.ID, 10)

	rec = f.do(t, staff, http.MethodPost, base+"/delivered", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decodeProblem(t, rec).Code)

	rec = f.do(t, staff, http.MethodPost, base+"/payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, staff, http.MethodPost, base+"/shipment", map[string]any{"carrier": "CJ", "tracking_number": "1"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decodeProblem(t, rec).Code)

	rec = f.do(t, shared.ClientPrincipal(999), http.MethodGet, "/api/orders/"+strconv.FormatInt(order.ID, 10), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "urn:backoffice:problem:forbidden", decodeProblem(t, rec).Type)

	rec = f.do(t, staff, http.MethodGet, "/api/admin/orders/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerBulkReportsProgress(t *testing.T) {
	f := newHTTPFixture(t)
	client := shared.ClientPrincipal(f.client.ID)
	staff := shared.StaffPrincipal(1)
	var ids []int64
	for range 3 {
		rec := f.do(t, client, http.MethodPost, "/api/orders", map[string]any{"items": []map[string]any{{"product_id": f.product.ID, "quantity": 1}}})
		require.Equal(t, http.StatusCreated, rec.Code)
		var o orders.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
		ids = append(ids, o.ID)
	}
	rec := f.do(t, staff, http.MethodPost, "/api/admin/orders/"+strconv.FormatInt(ids[1], 10)+"/payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, staff, http.MethodPost, "/api/admin/orders/bulk", map[string]any{"action": "confirm_payment", "order_ids": ids})
	require.Equal(t, http.StatusConflict, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "INVALID_STATE_TRANSITION", problem.Code)
	assert.EqualValues(t, ids[1], problem.Extensions["failed_id"])
	assert.Len(t, problem.Extensions["completed"], 1)
	assert.Len(t, problem.Extensions["remaining"], 1)
}
