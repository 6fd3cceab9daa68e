package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-retail/internal/catalog"
	"github.com/odyssey-erp/odyssey-retail/internal/observability"
	"github.com/odyssey-erp/odyssey-retail/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-retail/internal/purchases"
	"github.com/odyssey-erp/odyssey-retail/internal/sales"
	"github.com/odyssey-erp/odyssey-retail/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	CatalogHandler  *catalog.Handler
	PurchaseHandler *purchases.Handler
	SalesHandler    *sales.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
	Database        Pinger
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(params.Database))

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))
		if params.CatalogHandler != nil {
			r.Route("/products", params.CatalogHandler.MountRoutes)
		}
		if params.PurchaseHandler != nil {
			r.Route("/purchases", params.PurchaseHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
	})

	return r
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
