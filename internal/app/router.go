package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/steelforge-erp/steelforge/internal/billing"
	"github.com/steelforge-erp/steelforge/internal/masterdata"
	"github.com/steelforge-erp/steelforge/internal/observability"
	"github.com/steelforge-erp/steelforge/internal/orders"
	"github.com/steelforge-erp/steelforge/internal/production"
	"github.com/steelforge-erp/steelforge/internal/shipping"
	"github.com/steelforge-erp/steelforge/internal/stock"
	"github.com/steelforge-erp/steelforge/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	StockHandler      *stock.Handler
	MasterDataHandler *masterdata.Handler
	ProductionHandler *production.Handler
	ShippingHandler   *shipping.Handler
	OrdersHandler     *orders.Handler
	BillingHandler    *billing.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with SteelForge defaults.
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

	r.Route("/api/v1", func(r chi.Router) {
		if params.MasterDataHandler != nil {
			params.MasterDataHandler.MountRoutes(r)
		}
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.ProductionHandler != nil {
			params.ProductionHandler.MountRoutes(r)
		}
		if params.ShippingHandler != nil {
			params.ShippingHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
