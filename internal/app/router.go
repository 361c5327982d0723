package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pneutrack/console/internal/auth"
	"github.com/pneutrack/console/internal/observability"
	"github.com/pneutrack/console/internal/rbac"
	"github.com/pneutrack/console/internal/resources"
	"github.com/pneutrack/console/internal/session"
	"github.com/pneutrack/console/internal/shared"
	"github.com/pneutrack/console/internal/view"
	"github.com/pneutrack/console/jobs"
	"github.com/pneutrack/console/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Templates          *view.Engine
	Profiles           *shared.ProfileManager
	CSRFManager        *shared.CSRFManager
	Sessions           rbac.Sessions
	Resolver           *rbac.Resolver
	AuthHandler        *auth.Handler
	ResourceHandler    *resources.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Profiles:    params.Profiles,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	loginLimit := 10
	if params.Config != nil {
		loginLimit = params.Config.LoginRateLimit
	}
	r.Group(func(r chi.Router) {
		r.Use(LoginRateLimit(loginLimit))
		params.AuthHandler.MountRoutes(r)
	})
	params.AuthHandler.MountLogout(r)

	guards := rbac.Guards{Sessions: params.Sessions, Resolver: params.Resolver, Logger: params.Logger}

	r.Group(func(r chi.Router) {
		r.Use(guards.RequireAuth)

		r.Get(rbac.FallbackDashboard, home(params))

		r.Route("/conta", func(r chi.Router) {
			params.AuthHandler.MountAccount(r)
			if params.PermissionsHandler != nil {
				r.Route("/permissoes", params.PermissionsHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})

		for _, role := range params.Resolver.Roles() {
			root, ok := params.Resolver.Root(role)
			if !ok {
				continue
			}
			r.Route(root, func(r chi.Router) {
				r.Use(guards.RequireRoles(role))
				params.ResourceHandler.MountRole(r, role)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// home sends known roles to their dashboard and shows the neutral page to
// sessions whose role has no screens.
func home(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		if target := params.Resolver.DefaultDashboard(sess.Role); target != rbac.FallbackDashboard {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		profile := shared.ProfileFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), profile)
		var flash *shared.FlashMessage
		if profile != nil {
			flash = profile.PopFlash()
		}
		data := view.TemplateData{
			Title:       "Console",
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			Role:        sess.Role,
			Data: map[string]any{
				"AppEnv": params.Config.AppEnv,
			},
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// staticCacheHandler marks embedded assets cacheable for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
