package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/holdco/internal/observability"
)

// APIPrefix is the mount point of the versioned API.
const APIPrefix = "/api/v1"

// RouteMounter is implemented by every package handler.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Metrics     *observability.Metrics
	Directory   groupDirectory
	Idempotency idempotencyStore

	LedgerHandler     RouteMounter
	CostPoolHandler   RouteMounter
	InvoicingHandler  RouteMounter
	PaymentsHandler   RouteMounter
	TaxHandler        RouteMounter
	PeriodLockHandler RouteMounter
	ConsolHandler     RouteMounter
	MonthCloseHandler RouteMounter
	ExportHandler     RouteMounter
	JobHandler        RouteMounter
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route(APIPrefix, func(api chi.Router) {
		api.Use(RequireIdentity(params.Logger))
		if params.Directory != nil {
			api.Use(ScopeGuard(api, params.Directory, params.Logger))
		}
		if params.Idempotency != nil {
			api.Use(Idempotency(params.Idempotency, params.Metrics, params.Logger))
		}
		for _, h := range []RouteMounter{
			params.LedgerHandler,
			params.CostPoolHandler,
			params.InvoicingHandler,
			params.PaymentsHandler,
			params.TaxHandler,
			params.PeriodLockHandler,
			params.ConsolHandler,
			params.MonthCloseHandler,
			params.ExportHandler,
		} {
			if h != nil {
				h.MountRoutes(api)
			}
		}
	})

	return r
}
