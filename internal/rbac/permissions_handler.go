package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pneutrack/console/internal/platform/httpx"
	"github.com/pneutrack/console/internal/session"
	"github.com/pneutrack/console/internal/shared"
	"github.com/pneutrack/console/internal/view"
)

// PermissionsHandler shows the signed-in role what it may access.
type PermissionsHandler struct {
	logger    *slog.Logger
	resolver  *Resolver
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, resolver *Resolver, templates *view.Engine, csrf *shared.CSRFManager) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, resolver: resolver, templates: templates, csrf: csrf}
}

// MountRoutes registers permission routes. The caller mounts them behind
// RequireAuth.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

// Grants describes the route access of one role.
type Grants struct {
	Role      string   `json:"role"`
	Dashboard string   `json:"dashboard"`
	Prefixes  []string `json:"prefixes"`
}

func (h *PermissionsHandler) show(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	grants := Grants{
		Role:      sess.Role,
		Dashboard: h.resolver.DefaultDashboard(sess.Role),
		Prefixes:  h.resolver.AllowedPrefixes(sess.Role),
	}
	if httpx.WantsJSON(r) || h.templates == nil {
		httpx.JSON(w, http.StatusOK, grants)
		return
	}
	profile := shared.ProfileFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), profile)
	var flash *shared.FlashMessage
	if profile != nil {
		flash = profile.PopFlash()
	}
	data := view.TemplateData{Title: "Permissões", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Role: sess.Role, Data: grants}
	if err := h.templates.Render(w, "pages/permissions.html", data); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
