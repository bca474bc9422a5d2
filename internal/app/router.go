package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stewardhq/steward/internal/identity"
	"github.com/stewardhq/steward/internal/observability"
	"github.com/stewardhq/steward/internal/permsets"
	"github.com/stewardhq/steward/internal/profiles"
	"github.com/stewardhq/steward/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	RolesHandler          *roles.Handler
	ProfilesHandler       *profiles.Handler
	PermissionSetsHandler *permsets.Handler
	UsersHandler          *identity.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with Steward defaults.
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

	r.Route("/admin", func(r chi.Router) {
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.ProfilesHandler != nil {
			r.Route("/profiles", params.ProfilesHandler.MountRoutes)
		}
		if params.PermissionSetsHandler != nil {
			r.Route("/permission-sets", params.PermissionSetsHandler.MountRoutes)
		}
		r.Route("/users", func(r chi.Router) {
			if params.UsersHandler != nil {
				params.UsersHandler.MountRoutes(r)
			}
			if params.ProfilesHandler != nil {
				params.ProfilesHandler.MountUserRoutes(r)
			}
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
