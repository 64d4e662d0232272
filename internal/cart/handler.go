package cart

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/shared"
)

// Handler exposes cart endpoints for clients.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers cart routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/cart", h.list)
	r.Post("/cart", h.add)
	r.Patch("/cart/{itemID}", h.update)
	r.Delete("/cart/{itemID}", h.remove)
}

type addRequest struct {
	ProductIDs []int64 `json:"product_ids" validate:"required,min=1,max=100,dive,gt=0"`
}

type updateRequest struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.List(r.Context(), rbac.Principal(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.AddProducts(r.Context(), rbac.Principal(r), req.ProductIDs)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateQuantity(r.Context(), rbac.Principal(r), id, req.Quantity)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), rbac.Principal(r), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error("cart request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
