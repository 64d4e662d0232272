package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/shared"
)

// IdempotencyPort guards order placement against replays.
type IdempotencyPort interface {
	Claim(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key, scope string) error
}

// Handler exposes order endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

// MountClientRoutes registers the client order routes. Callers must mount them behind rbac.RequireClient.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/cancel-request", h.requestCancel)
	r.Post("/orders/{id}/return-request", h.requestReturn)
	r.Post("/orders/bulk", h.bulk)
}

// MountStaffRoutes registers the staff order routes. Callers must mount them behind rbac.RequireStaff.
func (h *Handler) MountStaffRoutes(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/payment", h.confirmPayment)
	r.Post("/orders/{id}/shipment", h.createShipment)
	r.Delete("/orders/{id}/shipment", h.deleteShipment)
	r.Post("/orders/{id}/delivered", h.markDelivered)
	r.Post("/orders/{id}/cancel/approve", h.approveCancel)
	r.Post("/orders/{id}/cancel/reject", h.rejectCancel)
	r.Post("/orders/{id}/return/approve", h.approveReturn)
	r.Post("/orders/{id}/return/reject", h.rejectReturn)
	r.Post("/orders/bulk", h.bulk)
	r.Get("/shipments", h.listShipments)
}

type placeOrderRequest struct {
	Items    []ItemInput   `json:"items" validate:"required,min=1,dive"`
	Delivery *DeliveryInfo `json:"delivery"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := rbac.Principal(r)
	key := r.Header.Get("Idempotency-Key")
	scope := "place_order:" + strconv.FormatInt(principal.ID, 10)
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Claim(r.Context(), key, scope); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	order, err := h.service.PlaceOrder(r.Context(), PlaceOrderInput{Client: principal, Items: req.Items, Delivery: req.Delivery})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(r.Context(), key, scope); relErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    httpx.QueryInt(r, "page", 1),
		PerPage: httpx.QueryInt(r, "per_page", 20),
	}
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.Errorf(shared.ErrInvalidInput, "client_id must be an integer"))
			return
		}
		filter.ClientID = id
	}
	var err error
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1)
	}
	list, page, err := h.service.ListOrders(r.Context(), rbac.Principal(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list, "pagination": page})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), rbac.Principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req ReasonInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	h.run(w, r, func(ctx context.Context, actor shared.Principal, id int64) (Order, error) {
		return h.service.CancelByClient(ctx, actor, id, req)
	})
}

func (h *Handler) requestCancel(w http.ResponseWriter, r *http.Request) {
	var req ReasonInput
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, func(ctx context.Context, actor shared.Principal, id int64) (Order, error) {
		return h.service.RequestCancel(ctx, actor, id, req)
	})
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var req ReasonInput
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, func(ctx context.Context, actor shared.Principal, id int64) (Order, error) {
		return h.service.RequestReturn(ctx, actor, id, req)
	})
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.ConfirmPayment)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var req ShipmentInput
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, func(ctx context.Context, actor shared.Principal, id int64) (Order, error) {
		return h.service.CreateShipment(ctx, actor, id, req)
	})
}

func (h *Handler) deleteShipment(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.DeleteShipment)
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.MarkDelivered)
}

func (h *Handler) approveCancel(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.ApproveCancel)
}

func (h *Handler) rejectCancel(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, func(ctx context.Context, actor shared.Principal, id int64) (Order, error) {
		return h.service.RejectCancel(ctx, actor, id, req.Reason)
	})
}

func (h *Handler) approveReturn(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.service.ApproveReturn)
}

func (h *Handler) rejectReturn(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.run(w, r, func(ctx context.Context, actor shared.Principal, id int64) (Order, error) {
		return h.service.RejectReturn(ctx, actor, id, req.Reason)
	})
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Bulk(r.Context(), rbac.Principal(r), req)
	if err != nil {
		var bulkErr *BulkError
		if errors.As(err, &bulkErr) {
			h.logger.Warn("bulk order action stopped",
				slog.String("action", string(bulkErr.Action)),
				slog.Int64("order_id", bulkErr.FailedID),
				slog.Any("error", bulkErr.Err))
			httpx.RespondErrorWith(w, bulkErr.Err, map[string]any{
				"completed": bulkErr.Completed,
				"failed_id": bulkErr.FailedID,
				"remaining": bulkErr.Remaining,
			})
			return
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	filter := ShipmentFilter{
		Keyword: r.URL.Query().Get("q"),
		Page:    httpx.QueryInt(r, "page", 1),
		PerPage: httpx.QueryInt(r, "per_page", 20),
	}
	list, page, err := h.service.ListShipments(r.Context(), rbac.Principal(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": list, "pagination": page})
}

type orderAction func(ctx context.Context, actor shared.Principal, orderID int64) (Order, error)

func (h *Handler) run(w http.ResponseWriter, r *http.Request, action orderAction) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := action(r.Context(), rbac.Principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error("order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
