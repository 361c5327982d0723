package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pneutrack/console/internal/platform/httpx"
	"github.com/pneutrack/console/internal/session"
	"github.com/pneutrack/console/internal/shared"
)

// LoginPath is the unguarded login page.
const LoginPath = "/login"

// Sessions is the part of the session manager the guards consult.
type Sessions interface {
	IsValid(ctx context.Context, profile string) bool
	Current(ctx context.Context, profile string) (session.Session, error)
}

// Guards wires authentication and authorization checks for chi routes.
type Guards struct {
	Sessions Sessions
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAuth lets the request through only with a live session, which it
// attaches to the request context. Anyone else is sent to the login page with
// the attempted location preserved.
func (g Guards) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := shared.ProfileFromContext(r.Context())
		if profile == nil || !g.Sessions.IsValid(r.Context(), profile.ID) {
			g.toLogin(w, r, profile)
			return
		}
		sess, err := g.Sessions.Current(r.Context(), profile.ID)
		if err != nil {
			g.logger().Warn("session vanished after validation", slog.String("profile", profile.ID), slog.Any("error", err))
			g.toLogin(w, r, profile)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), sess)))
	})
}

// RequireRoles admits sessions whose role is one of roles. With no roles given
// the role table decides by request path. Misplaced users go to their own
// dashboard, never to login.
func (g Guards) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				g.toLogin(w, r, shared.ProfileFromContext(r.Context()))
				return
			}
			if g.permits(allowed, sess.Role, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			target := g.Resolver.DefaultDashboard(sess.Role)
			if target == r.URL.Path {
				// the dashboard itself rejected this role; redirecting would loop
				g.logger().Error("dashboard rejects its own role", slog.String("role", sess.Role), slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			if httpx.WantsJSON(r) {
				httpx.ProblemWithLocation(w, http.StatusForbidden, "Forbidden", target)
				return
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

func (g Guards) permits(allowed map[Role]struct{}, role, path string) bool {
	if len(allowed) == 0 {
		return g.Resolver.IsAllowed(role, path)
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return false
	}
	_, ok = allowed[parsed]
	return ok
}

func (g Guards) toLogin(w http.ResponseWriter, r *http.Request, profile *shared.Profile) {
	attempted := r.URL.RequestURI()
	target := LoginPath + "?next=" + url.QueryEscape(attempted)
	if httpx.WantsJSON(r) {
		httpx.ProblemWithLocation(w, http.StatusUnauthorized, "Unauthorized", target)
		return
	}
	if profile != nil && r.Method == http.MethodGet {
		profile.SetPendingRedirect(attempted)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (g Guards) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
