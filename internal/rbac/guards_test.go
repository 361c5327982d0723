package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneutrack/console/internal/session"
	"github.com/pneutrack/console/internal/shared"
)

type fakeSessions struct {
	sessions map[string]session.Session
	checked  int
}

func (f *fakeSessions) IsValid(ctx context.Context, profile string) bool {
	f.checked++
	_, ok := f.sessions[profile]
	return ok
}

func (f *fakeSessions) Current(ctx context.Context, profile string) (session.Session, error) {
	sess, ok := f.sessions[profile]
	if !ok {
		return session.Session{}, session.ErrNoSession
	}
	return sess, nil
}

func newGuardedRouter(sessions Sessions) http.Handler {
	g := Guards{Sessions: sessions, Resolver: NewResolver()}
	ok := func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) }

	r := chi.NewRouter()
	r.Get(LoginPath, ok)
	r.Group(func(r chi.Router) {
		r.Use(g.RequireAuth)
		r.Get(FallbackDashboard, ok)
		r.Get("/conta/perfil", ok)
		r.Route("/motorista", func(r chi.Router) {
			r.Use(g.RequireRoles(Motorista))
			r.Get("/dashboard", ok)
			r.Get("/veiculos", ok)
		})
		r.Route("/revenda", func(r chi.Router) {
			r.Use(g.RequireRoles())
			r.Get("/dashboard", ok)
		})
	})
	return r
}

func serve(h http.Handler, profile *shared.Profile, req *http.Request) *httptest.ResponseRecorder {
	if profile != nil {
		req = req.WithContext(shared.ContextWithProfile(req.Context(), profile))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuthRedirectsToLoginPreservingLocation(t *testing.T) {
	h := newGuardedRouter(&fakeSessions{})
	profile := &shared.Profile{ID: "p1"}

	rec := serve(h, profile, httptest.NewRequest(http.MethodGet, "/motorista/veiculos?page=2", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fmotorista%2Fveiculos%3Fpage%3D2", rec.Header().Get("Location"))
	assert.Equal(t, "/motorista/veiculos?page=2", profile.TakePendingRedirect())
}

func TestRequireAuthAnswersJSONClientsWithProblem(t *testing.T) {
	h := newGuardedRouter(&fakeSessions{})
	req := httptest.NewRequest(http.MethodGet, "/motorista/veiculos", nil)
	req.Header.Set("Accept", "application/json")

	rec := serve(h, &shared.Profile{ID: "p1"}, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"location":"/login?next=%2Fmotorista%2Fveiculos"`)
}

func TestLoginPageIsNeverGuarded(t *testing.T) {
	sessions := &fakeSessions{}
	rec := serve(newGuardedRouter(sessions), &shared.Profile{ID: "p1"}, httptest.NewRequest(http.MethodGet, LoginPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, sessions.checked)
}

func TestRequireRolesAdmitsMatchingRole(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]session.Session{"p1": {Role: "motorista"}}}
	rec := serve(newGuardedRouter(sessions), &shared.Profile{ID: "p1"}, httptest.NewRequest(http.MethodGet, "/motorista/veiculos", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesRedirectsMisplacedUserToOwnDashboard(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]session.Session{"p1": {Role: "revenda"}}}
	h := newGuardedRouter(sessions)

	rec := serve(h, &shared.Profile{ID: "p1"}, httptest.NewRequest(http.MethodGet, "/motorista/veiculos", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/revenda/dashboard", rec.Header().Get("Location"))

	follow := serve(h, &shared.Profile{ID: "p1"}, httptest.NewRequest(http.MethodGet, "/revenda/dashboard", nil))
	assert.Equal(t, http.StatusOK, follow.Code)
}

func TestRequireRolesSendsUnknownRoleToNeutralHome(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]session.Session{"p1": {Role: "gerente"}}}
	h := newGuardedRouter(sessions)

	rec := serve(h, &shared.Profile{ID: "p1"}, httptest.NewRequest(http.MethodGet, "/revenda/dashboard", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, FallbackDashboard, rec.Header().Get("Location"))

	home := serve(h, &shared.Profile{ID: "p1"}, httptest.NewRequest(http.MethodGet, FallbackDashboard, nil))
	assert.Equal(t, http.StatusOK, home.Code)
}

func TestSharedPagesAllowEveryRole(t *testing.T) {
	for _, role := range NewResolver().Roles() {
		sessions := &fakeSessions{sessions: map[string]session.Session{"p1": {Role: string(role)}}}
		rec := serve(newGuardedRouter(sessions), &shared.Profile{ID: "p1"}, httptest.NewRequest(http.MethodGet, "/conta/perfil", nil))
		assert.Equal(t, http.StatusOK, rec.Code, role)
	}
}

func TestRequireRolesJSONForbidden(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]session.Session{"p1": {Role: "revenda"}}}
	req := httptest.NewRequest(http.MethodGet, "/motorista/dashboard", nil)
	req.Header.Set("Accept", "application/json")

	rec := serve(newGuardedRouter(sessions), &shared.Profile{ID: "p1"}, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "/revenda/dashboard", rec.Header().Get("Location"))
}
