package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pneutrack/console/internal/platform/httpx"
	"github.com/pneutrack/console/internal/rbac"
	"github.com/pneutrack/console/internal/session"
	"github.com/pneutrack/console/internal/shared"
	"github.com/pneutrack/console/internal/token"
	"github.com/pneutrack/console/internal/view"
)

// Sessions is the slice of the session manager the auth pages drive.
type Sessions interface {
	Login(ctx context.Context, profile, identifier, secret string) (session.LoginResult, error)
	Logout(ctx context.Context, profile string)
	IsValid(ctx context.Context, profile string) bool
	Current(ctx context.Context, profile string) (session.Session, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	sessions    Sessions
	resolver    *rbac.Resolver
	templates   *view.Engine
	profiles    *shared.ProfileManager
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
	onLogout    []func(profile string)
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, sessions Sessions, resolver *rbac.Resolver, templates *view.Engine, profiles *shared.ProfileManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		sessions:    sessions,
		resolver:    resolver,
		templates:   templates,
		profiles:    profiles,
		csrfManager: csrf,
		validator:   validator.New(),
	}
}

// OnLogout registers fn to run after a profile logs out.
func (h *Handler) OnLogout(fn func(profile string)) {
	h.onLogout = append(h.onLogout, fn)
}

// MountRoutes registers the unguarded login routes. The caller rate limits them.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get(rbac.LoginPath, h.showLogin)
	r.Post(rbac.LoginPath, h.handleLogin)
}

// MountLogout registers the logout route.
func (h *Handler) MountLogout(r chi.Router) {
	r.Post("/logout", h.handleLogout)
}

// MountAccount registers account pages. The caller guards them with RequireAuth.
func (h *Handler) MountAccount(r chi.Router) {
	r.Get("/perfil", h.showProfile)
}

type loginForm struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Secret     string `json:"secret" validate:"required,min=3"`
	Next       string `json:"next"`
}

var fieldMessages = map[string]string{
	"Identifier.required": "Informe seu e-mail.",
	"Identifier.max":      "E-mail muito longo.",
	"Secret.required":     "Informe sua senha.",
	"Secret.min":          "A senha deve ter pelo menos 3 caracteres.",
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	profile := shared.ProfileFromContext(r.Context())
	next := safeNext(r.URL.Query().Get("next"))
	if profile != nil && h.sessions.IsValid(r.Context(), profile.ID) {
		if sess, err := h.sessions.Current(r.Context(), profile.ID); err == nil {
			http.Redirect(w, r, h.landing(sess.Role, next, sess.RedirectTarget), http.StatusSeeOther)
			return
		}
	}
	if r.URL.Query().Has("saiu") && profile != nil {
		profile.AddFlash(shared.FlashMessage{Kind: "info", Message: "Você saiu da sua conta."})
	}
	h.renderLogin(w, r, http.StatusOK, map[string]any{"Next": next})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	wantsJSON := isJSONBody(r)
	form, err := h.readForm(r, wantsJSON)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	profile := shared.ProfileFromContext(r.Context())
	if profile == nil {
		h.logger.Error("browser profile missing during login")
		httpx.RespondError(w, shared.ErrProfileMissing)
		return
	}

	if fieldErrors := h.validate(form); len(fieldErrors) > 0 {
		if wantsJSON {
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrors})
			return
		}
		h.renderLogin(w, r, http.StatusUnprocessableEntity, map[string]any{"Identifier": form.Identifier, "Next": form.Next, "Errors": fieldErrors})
		return
	}

	result, err := h.sessions.Login(r.Context(), profile.ID, form.Identifier, form.Secret)
	if err != nil {
		message := loginFailureMessage(err)
		if wantsJSON {
			httpx.Problem(w, http.StatusUnauthorized, "Login Failed", message)
			return
		}
		profile.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
		h.renderLogin(w, r, http.StatusUnauthorized, map[string]any{"Identifier": form.Identifier, "Next": form.Next})
		return
	}

	if _, err := h.csrfManager.Rotate(r.Context(), profile); err != nil {
		h.logger.Warn("rotate csrf token", slog.Any("error", err))
	}
	pending := profile.TakePendingRedirect()
	next := safeNext(form.Next)
	if next == "" {
		next = safeNext(pending)
	}
	target := h.landing(result.Role, next, result.RedirectTarget)
	if wantsJSON {
		httpx.JSON(w, http.StatusOK, map[string]string{"role": result.Role, "redirect_target": target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	profile := shared.ProfileFromContext(r.Context())
	if profile != nil {
		h.sessions.Logout(r.Context(), profile.ID)
		for _, fn := range h.onLogout {
			fn(profile.ID)
		}
		h.profiles.Destroy(profile)
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, rbac.LoginPath+"?saiu=1", http.StatusSeeOther)
}

// Account is the signed-in identity shown on the profile page.
type Account struct {
	Role      string         `json:"role"`
	SubjectID string         `json:"subject_id"`
	ExpiresAt time.Time      `json:"expires_at"`
	Details   map[string]any `json:"details,omitempty"`
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	account := Account{Role: sess.Role, SubjectID: sess.SubjectID}
	if claims, err := token.Decode(sess.AccessToken); err == nil {
		account.ExpiresAt = claims.ExpiresAt()
	}
	if len(sess.Profile) > 0 {
		if err := json.Unmarshal(sess.Profile, &account.Details); err != nil {
			h.logger.Warn("cached profile is not an object", slog.Any("error", err))
		}
	}
	if httpx.WantsJSON(r) || h.templates == nil {
		httpx.JSON(w, http.StatusOK, account)
		return
	}
	h.render(w, r, http.StatusOK, "pages/profile.html", "Minha conta", sess.Role, account)
}

func (h *Handler) readForm(r *http.Request, jsonBody bool) (loginForm, error) {
	var form loginForm
	if jsonBody {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			return form, errors.New("invalid JSON body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return form, errors.New("invalid form body")
		}
		form = loginForm{
			Identifier: r.PostFormValue("identifier"),
			Secret:     r.PostFormValue("secret"),
			Next:       r.PostFormValue("next"),
		}
	}
	form.Identifier = strings.TrimSpace(form.Identifier)
	return form, nil
}

func (h *Handler) validate(form loginForm) map[string]string {
	err := h.validator.Struct(form)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"general": err.Error()}
	}
	out := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		key := strings.ToLower(fieldErr.Field())
		if msg, ok := fieldMessages[fieldErr.Field()+"."+fieldErr.Tag()]; ok {
			out[key] = msg
			continue
		}
		out[key] = fieldErr.Error()
	}
	return out
}

// landing picks the post-login location: the remembered page when the role may
// visit it, otherwise the login result's target.
func (h *Handler) landing(role, next, fallback string) string {
	if next != "" && h.resolver.IsAllowed(role, pathOf(next)) {
		return next
	}
	if fallback != "" {
		return fallback
	}
	return h.resolver.DefaultDashboard(role)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	h.render(w, r, status, "pages/login.html", "Entrar", "", data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, template, title, role string, data any) {
	profile := shared.ProfileFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), profile)
	var flash *shared.FlashMessage
	if profile != nil {
		flash = profile.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Role:        role,
		Data:        data,
	}
	if role != "" {
		viewData.Nav = []view.NavItem{{Title: "Painel", Path: h.resolver.DefaultDashboard(role)}}
	}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("template", template), slog.Any("error", err))
	}
}

func loginFailureMessage(err error) string {
	var loginErr *session.LoginError
	if errors.As(err, &loginErr) && loginErr.Message != "" {
		return loginErr.Message
	}
	return "Não foi possível entrar. Verifique suas credenciais."
}

// safeNext keeps only local absolute paths, so a crafted next cannot send the
// user to another host or back to the login page.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	if u.Path == rbac.LoginPath {
		return ""
	}
	return u.RequestURI()
}

func pathOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Path
}

func isJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
