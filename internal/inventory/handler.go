package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for the lot ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers lot routes. Callers must mount them behind rbac.RequireStaff.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots", h.listLots)
	r.Post("/lots", h.registerLot)
	r.Post("/lots/bulk-delete", h.bulkDelete)
	r.Get("/lots/{id}", h.getLot)
	r.Patch("/lots/{id}", h.updateLot)
	r.Delete("/lots/{id}", h.deleteLot)
	r.Post("/lots/{id}/adjustments", h.adjustLot)
	r.Get("/lots/{id}/logs", h.listLogs)
	r.Get("/lots/{id}/reconcile", h.reconcile)
}

type registerRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	ExpiryDate  string `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	InboundDate string `json:"inbound_date" validate:"omitempty,datetime=2006-01-02"`
	Location    string `json:"location" validate:"max=100"`
	Note        string `json:"note" validate:"max=500"`
}

type adjustRequest struct {
	Change int64  `json:"change_quantity" validate:"required,ne=0"`
	Reason Reason `json:"reason" validate:"required,oneof=OUTBOUND LOST DAMAGED EXPIRED COUNT_MISMATCH RETURN MANUAL_ADJUSTMENT ETC"`
	Note   string `json:"note" validate:"max=500"`
}

type updateRequest struct {
	ExpiryDate *string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Location   *string `json:"location" validate:"omitempty,max=100"`
	Quantity   *int64  `json:"quantity" validate:"omitempty,gte=0"`
	Note       string  `json:"note" validate:"max=500"`
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	filter := LotFilter{
		Grade:   Grade(r.URL.Query().Get("grade")),
		Keyword: r.URL.Query().Get("q"),
		Page:    httpx.QueryInt(r, "page", 1),
		PerPage: httpx.QueryInt(r, "per_page", 20),
	}
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.Errorf(shared.ErrInvalidInput, "product_id must be an integer"))
			return
		}
		filter.ProductID = id
	}
	lots, page, err := h.service.ListLots(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": lots, "pagination": page})
}

func (h *Handler) registerLot(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	expiry, err := parseDate("expiry_date", req.ExpiryDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var inbound time.Time
	if req.InboundDate != "" {
		if inbound, err = parseDate("inbound_date", req.InboundDate); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	lot, err := h.service.RegisterInbound(r.Context(), InboundInput{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		ExpiryDate:  expiry,
		InboundDate: inbound,
		Location:    req.Location,
		Note:        req.Note,
		Actor:       rbac.Principal(r),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) getLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) updateLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := UpdateLotInput{LotID: id, Location: req.Location, Quantity: req.Quantity, Note: req.Note, Actor: rbac.Principal(r)}
	if req.ExpiryDate != nil {
		expiry, err := parseDate("expiry_date", *req.ExpiryDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.ExpiryDate = &expiry
	}
	lot, err := h.service.UpdateLot(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) deleteLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteLot(r.Context(), id, rbac.Principal(r)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.DeleteLots(r.Context(), rbac.Principal(r), req.LotIDs)
	if err != nil {
		var bulkErr *BulkError
		if errors.As(err, &bulkErr) {
			h.logger.Warn("bulk lot delete stopped", slog.Int64("lot_id", bulkErr.FailedID), slog.Any("error", bulkErr.Err))
			httpx.RespondErrorWith(w, bulkErr.Err, map[string]any{
				"completed": bulkErr.Completed,
				"failed_id": bulkErr.FailedID,
				"remaining": bulkErr.Remaining,
			})
			return
		}
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) adjustLot(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, entry, err := h.service.Adjust(r.Context(), AdjustInput{LotID: id, Change: req.Change, Reason: req.Reason, Note: req.Note, Actor: rbac.Principal(r)})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lot": lot, "adjustment": entry})
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.service.ListLogs(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.Errorf(shared.ErrInvalidInput, "%s must be a YYYY-MM-DD date", field)
	}
	return t, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error("inventory request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
