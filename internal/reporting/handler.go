package reporting

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/shared"
)

// Handler exposes dashboard and settlement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountClientRoutes registers the client dashboard.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
}

// MountStaffRoutes registers the staff dashboard and the settlement feed.
func (h *Handler) MountStaffRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Get("/settlements", h.settlements)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	scope, err := clientScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Dashboard(r.Context(), rbac.Principal(r), scope)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) settlements(w http.ResponseWriter, r *http.Request) {
	scope, err := clientScope(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	feed, err := h.service.SettlementFeed(r.Context(), rbac.Principal(r), SettlementFilter{From: from, To: to, ClientID: scope.ClientID})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, feed)
}

func clientScope(r *http.Request) (Scope, error) {
	raw := r.URL.Query().Get("client_id")
	if raw == "" {
		return Scope{}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Scope{}, shared.Errorf(shared.ErrInvalidInput, "client_id must be a positive integer")
	}
	return Scope{ClientID: id}, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error("reporting request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
