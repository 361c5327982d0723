package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/pneutrack/console/internal/auth"
	"github.com/pneutrack/console/internal/rbac"
	"github.com/pneutrack/console/internal/session"
	"github.com/pneutrack/console/internal/shared"
	"github.com/pneutrack/console/internal/token/tokentest"
	"github.com/pneutrack/console/internal/view"
	_ "github.com/pneutrack/console/testing"
)

type harness struct {
	router    http.Handler
	store     *session.MemoryStore
	manager   *session.Manager
	profile   *shared.Profile
	loggedOut []string
}

func newHarness(t *testing.T, authAPI http.Handler) *harness {
	t.Helper()
	api := httptest.NewServer(authAPI)
	t.Cleanup(api.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	profiles := shared.NewProfileManager(redisClient, "console_profile", time.Hour, false)

	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	resolver := rbac.NewResolver()
	store := session.NewMemoryStore()
	client := session.NewAuthClient(session.AuthEndpoints{
		BaseURL:        api.URL,
		LoginPath:      "/api/token/",
		ActorLoginPath: "/api/motoristas/login/",
		RefreshPath:    "/api/token/refresh/",
	}, api.Client())
	manager := session.NewManager(store, client, resolver, nil)

	h := &harness{store: store, manager: manager}
	handler := auth.NewHandler(nil, manager, resolver, templates, profiles, shared.NewCSRFManager("csrfsecret"))
	handler.OnLogout(func(profile string) { h.loggedOut = append(h.loggedOut, profile) })

	profile, err := profiles.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	h.profile = profile

	guards := rbac.Guards{Sessions: manager, Resolver: resolver}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithProfile(req.Context(), h.profile)))
		})
	})
	handler.MountRoutes(r)
	handler.MountLogout(r)
	r.With(guards.RequireAuth).Route("/conta", handler.MountAccount)
	h.router = r
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func primaryOnly(t *testing.T, role string) http.Handler {
	access := tokentest.Access(t, 42, role, time.Now().Add(time.Hour))
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "certa" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Usuário ou senha inválidos"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access": access, "refresh": "R", "user": map[string]any{"nome": "Ana"}})
	})
	mux.HandleFunc("/api/motoristas/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))

	res := h.do(httptest.NewRequest(http.MethodGet, "/login?next=%2Frevenda%2Fpneus", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "<form") {
		t.Fatalf("expected login form in body")
	}
	if !strings.Contains(body, `value="/revenda/pneus"`) {
		t.Fatalf("expected next target to be carried by the form")
	}
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))

	res := h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"ab"}}))
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "pelo menos 3 caracteres") {
		t.Fatalf("expected secret validation message, got %s", res.Body.String())
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))

	res := h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"errada"}}))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Usuário ou senha inválidos") {
		t.Fatalf("expected server message in body")
	}
	if _, err := h.store.Get(context.Background(), h.profile.ID); err == nil {
		t.Fatalf("expected no session after failed login")
	}
}

func TestLoginRedirectsToRoleDashboard(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))

	res := h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"certa"}}))
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/revenda/dashboard" {
		t.Fatalf("expected dashboard redirect, got %q", loc)
	}
	sess, err := h.store.Get(context.Background(), h.profile.ID)
	if err != nil {
		t.Fatalf("expected stored session: %v", err)
	}
	if sess.Role != "revenda" || sess.SubjectID != "42" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestLoginReturnsToPendingLocation(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))

	h.profile.SetPendingRedirect("/revenda/estoque?page=3")
	res := h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"certa"}}))
	if loc := res.Header().Get("Location"); loc != "/revenda/estoque?page=3" {
		t.Fatalf("expected pending redirect, got %q", loc)
	}
	if h.profile.TakePendingRedirect() != "" {
		t.Fatalf("expected pending redirect to be consumed")
	}
}

func TestLoginIgnoresForeignOrUnsafeNext(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))

	for _, next := range []string{"/motorista/dashboard", "//evil.example/x", "https://evil.example", "/login"} {
		res := h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"certa"}, "next": {next}}))
		if loc := res.Header().Get("Location"); loc != "/revenda/dashboard" {
			t.Fatalf("next %q: expected dashboard redirect, got %q", next, loc)
		}
	}
}

func TestLoginJSON(t *testing.T) {
	h := newHarness(t, primaryOnly(t, ""))

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"identifier":"ana@frota.com","secret":"certa"}`))
	req.Header.Set("Content-Type", "application/json")
	res := h.do(req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["role"] != session.PrimaryFallbackRole || body["redirect_target"] != "/transportador/dashboard" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestLoginPageRedirectsSignedInUser(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))
	h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"certa"}}))

	res := h.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/revenda/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", res.Code, res.Header().Get("Location"))
	}
}

func TestProfilePage(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))

	res := h.do(httptest.NewRequest(http.MethodGet, "/conta/perfil", nil))
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected guard redirect, got %d", res.Code)
	}

	h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"certa"}}))
	req := httptest.NewRequest(http.MethodGet, "/conta/perfil", nil)
	req.Header.Set("Accept", "application/json")
	res = h.do(req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	var account auth.Account
	if err := json.Unmarshal(res.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if account.Role != "revenda" || account.SubjectID != "42" || account.Details["nome"] != "Ana" {
		t.Fatalf("unexpected account %+v", account)
	}
	if account.ExpiresAt.IsZero() {
		t.Fatalf("expected token expiry")
	}

	html := h.do(httptest.NewRequest(http.MethodGet, "/conta/perfil", nil))
	if !strings.Contains(html.Body.String(), "Ana") {
		t.Fatalf("expected cached profile on page")
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t, primaryOnly(t, "revenda"))
	h.do(postForm(url.Values{"identifier": {"ana@frota.com"}, "secret": {"certa"}}))

	res := h.do(httptest.NewRequest(http.MethodPost, "/logout", nil))
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/login?saiu=1" {
		t.Fatalf("unexpected logout response %d %q", res.Code, res.Header().Get("Location"))
	}
	if _, err := h.store.Get(context.Background(), h.profile.ID); err == nil {
		t.Fatalf("expected session to be cleared")
	}
	if len(h.loggedOut) != 1 || h.loggedOut[0] != h.profile.ID {
		t.Fatalf("expected logout hook for profile, got %v", h.loggedOut)
	}
}
