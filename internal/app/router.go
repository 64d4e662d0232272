package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/age-b2b/backoffice/internal/audit"
	"github.com/age-b2b/backoffice/internal/cart"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/observability"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/reporting"
	"github.com/age-b2b/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	RBAC             rbac.Middleware
	OrdersHandler    *orders.Handler
	CartHandler      *cart.Handler
	InventoryHandler *inventory.Handler
	ReportingHandler *reporting.Handler
	AuditHandler     *audit.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	AccessLog        bool
}

// NewRouter constructs the chi.Router with back office defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.AccessLog {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported on "+r.URL.Path)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(params.RBAC.Authenticate)

		api.Group(func(client chi.Router) {
			client.Use(params.RBAC.RequireClient)
			if params.OrdersHandler != nil {
				params.OrdersHandler.MountClientRoutes(client)
			}
			if params.CartHandler != nil {
				params.CartHandler.MountRoutes(client)
			}
			if params.ReportingHandler != nil {
				params.ReportingHandler.MountClientRoutes(client)
			}
		})

		api.Route("/admin", func(staff chi.Router) {
			staff.Use(params.RBAC.RequireStaff)
			if params.OrdersHandler != nil {
				params.OrdersHandler.MountStaffRoutes(staff)
			}
			if params.InventoryHandler != nil {
				params.InventoryHandler.MountRoutes(staff)
			}
			if params.ReportingHandler != nil {
				params.ReportingHandler.MountStaffRoutes(staff)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(staff)
			}
			if params.JobHandler != nil {
				staff.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
