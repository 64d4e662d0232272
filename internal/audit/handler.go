package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// Handler serves the staff audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the timeline and its rate limited CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "audit export rate limit exceeded")
		}),
	)
	r.Get("/audit", h.timeline)
	r.With(limiter).Get("/audit/export.csv", h.export)
}

func rateLimitKey(r *http.Request) (string, error) {
	if p := rbac.Principal(r); p.ID > 0 {
		return string(p.Kind) + ":" + strconv.FormatInt(p.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	body, err := h.service.ExportCSV(r.Context(), filters)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		return TimelineFilters{}, err
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		return TimelineFilters{}, err
	}
	q := r.URL.Query()
	return TimelineFilters{
		From:     from,
		To:       to,
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		Page:     httpx.QueryInt(r, "page", 1),
		PageSize: httpx.QueryInt(r, "page_size", defaultPageSize),
	}, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error("audit request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
