package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pharmacore/pharmacore/internal/alerts"
	"github.com/pharmacore/pharmacore/internal/medications"
	"github.com/pharmacore/pharmacore/internal/movements"
	"github.com/pharmacore/pharmacore/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	MedicationsHandler *medications.Handler
	MovementsHandler   *movements.Handler
	AlertsHandler      *alerts.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with pharmacore defaults.
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

	r.Route("/api", func(r chi.Router) {
		r.Use(TenantMiddleware(params.Logger))
		if params.MedicationsHandler != nil {
			r.Route("/medications", params.MedicationsHandler.MountRoutes)
		}
		if params.MovementsHandler != nil {
			r.Route("/movements", params.MovementsHandler.MountRoutes)
		}
		if params.AlertsHandler != nil {
			r.Route("/alerts", params.AlertsHandler.MountRoutes)
		}
	})

	return r
}
