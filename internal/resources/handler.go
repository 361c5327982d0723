package resources

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/pneutrack/console/internal/fetch"
	"github.com/pneutrack/console/internal/platform/httpx"
	"github.com/pneutrack/console/internal/rbac"
	"github.com/pneutrack/console/internal/shared"
	"github.com/pneutrack/console/internal/view"
)

const maxPageSize = 100

// TokenSources yields the bearer token source of a browser profile.
type TokenSources func(profile string) fetch.TokenSource

// Handler serves role dashboards and resource lists.
type Handler struct {
	logger          *slog.Logger
	catalogue       *Catalogue
	fetcher         *fetch.Fetcher
	registry        *fetch.Registry
	tokens          TokenSources
	templates       *view.Engine
	csrf            *shared.CSRFManager
	validate        *validator.Validate
	defaultPageSize int
}

// NewHandler constructs the resources handler.
func NewHandler(logger *slog.Logger, catalogue *Catalogue, fetcher *fetch.Fetcher, registry *fetch.Registry, tokens TokenSources, templates *view.Engine, csrf *shared.CSRFManager, defaultPageSize int) *Handler {
	if defaultPageSize < 1 || defaultPageSize > maxPageSize {
		defaultPageSize = 20
	}
	return &Handler{
		logger:          logger,
		catalogue:       catalogue,
		fetcher:         fetcher,
		registry:        registry,
		tokens:          tokens,
		templates:       templates,
		csrf:            csrf,
		validate:        validator.New(),
		defaultPageSize: defaultPageSize,
	}
}

// MountRole registers the dashboard and the lists role may see. The caller
// installs the role guard on r.
func (h *Handler) MountRole(r chi.Router, role rbac.Role) {
	r.Get("/dashboard", h.dashboard(role))
	for _, res := range h.catalogue.ForRole(role) {
		r.Get("/"+res.Slug, h.list(role, res))
	}
}

// ForgetProfile drops the list state kept for profile.
func (h *Handler) ForgetProfile(profile string) {
	prefix := profile + "|"
	h.registry.Forget(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// ListQuery is the accepted query string of a list screen.
type ListQuery struct {
	Search   string `validate:"max=120"`
	Ordering string `validate:"omitempty,max=64,printascii"`
	Page     int    `validate:"min=1,max=100000"`
	PageSize int    `validate:"min=1,max=100"`
}

func (h *Handler) parseQuery(values url.Values, res Resource) (ListQuery, error) {
	q := ListQuery{
		Search:   strings.TrimSpace(values.Get("search")),
		Ordering: strings.TrimSpace(values.Get("ordering")),
		Page:     1,
		PageSize: h.defaultPageSize,
	}
	if q.Ordering == "" {
		q.Ordering = res.DefaultOrdering
	}
	for _, field := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"page_size", &q.PageSize}} {
		raw := strings.TrimSpace(values.Get(field.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New(field.name + " must be a number")
		}
		*field.dst = n
	}
	if err := h.validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func (h *Handler) request(res Resource, q ListQuery) fetch.Request {
	params := url.Values{}
	params.Set("search", q.Search)
	params.Set("ordering", q.Ordering)
	return fetch.Request{
		Resource:   res.Slug,
		Candidates: res.Candidates,
		Params:     params,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Pagination: fetch.DefaultPagination(),
		Generator:  res.Generator(),
	}
}

func (h *Handler) list(role rbac.Role, res Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile := shared.ProfileFromContext(r.Context())
		if profile == nil {
			httpx.RespondError(w, shared.ErrProfileMissing)
			return
		}
		q, err := h.parseQuery(r.URL.Query(), res)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}

		key := profile.ID + "|" + string(role) + "|" + res.Slug
		resolver := h.registry.Get(key, h.fetcher.WithTokenSource(h.tokens(profile.ID)))
		result, committed := resolver.Resolve(r.Context(), h.request(res, q))
		if !committed {
			httpx.Problem(w, http.StatusConflict, "Superseded", "a newer request for this list is in progress")
			return
		}
		h.respondList(w, r, role, res, q, result)
	}
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, role rbac.Role, res Resource, q ListQuery, result fetch.Result) {
	status := http.StatusOK
	var problem error
	switch {
	case result.Err == nil:
	case errors.Is(result.Err, fetch.ErrUnauthorized):
		status, problem = http.StatusUnauthorized, httpx.ErrUnauthorized
	default:
		status, problem = http.StatusBadGateway, httpx.ErrUpstream
		h.logger.Warn("list unavailable", slog.String("resource", res.Slug), slog.Any("error", result.Err))
	}

	if httpx.WantsJSON(r) || h.templates == nil {
		if problem != nil {
			httpx.RespondError(w, problem)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
		return
	}

	data := map[string]any{
		"Resource":   res,
		"Query":      q,
		"Rows":       decodeRows(result.Data),
		"Result":     result,
		"Pagination": shared.NewPagination(result.Meta.Page, result.Meta.PageSize, result.Meta.Count),
	}
	if problem != nil {
		data["Error"] = problem.Error()
	}
	h.render(w, r, role, "pages/list.html", res.Title, data, status)
}

// Card summarises one resource on a dashboard.
type Card struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Path      string `json:"path"`
	Count     int    `json:"count"`
	Simulated bool   `json:"simulated"`
	Failed    bool   `json:"failed"`
}

func (h *Handler) dashboard(role rbac.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile := shared.ProfileFromContext(r.Context())
		if profile == nil {
			httpx.RespondError(w, shared.ErrProfileMissing)
			return
		}
		fetcher := h.fetcher.WithTokenSource(h.tokens(profile.ID))
		visible := h.catalogue.ForRole(role)
		cards := make([]Card, len(visible))

		var g errgroup.Group
		g.SetLimit(3)
		for i, res := range visible {
			g.Go(func() error {
				req := h.request(res, ListQuery{Ordering: res.DefaultOrdering, Page: 1, PageSize: 1})
				result := fetcher.Fetch(r.Context(), req)
				cards[i] = Card{Slug: res.Slug, Title: res.Title, Path: "/" + string(role) + "/" + res.Slug, Count: result.Meta.Count, Simulated: result.Simulated, Failed: result.Err != nil}
				if errors.Is(result.Err, fetch.ErrUnauthorized) {
					return result.Err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if httpx.WantsJSON(r) || h.templates == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			h.render(w, r, role, "pages/dashboard.html", "Painel", map[string]any{"Cards": cards, "Error": httpx.ErrUnauthorized.Error()}, http.StatusUnauthorized)
			return
		}

		if httpx.WantsJSON(r) || h.templates == nil {
			httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "cards": cards})
			return
		}
		h.render(w, r, role, "pages/dashboard.html", "Painel", map[string]any{"Cards": cards}, http.StatusOK)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, role rbac.Role, template, title string, data map[string]any, status int) {
	profile := shared.ProfileFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), profile)
	var flash *shared.FlashMessage
	if profile != nil {
		flash = profile.PopFlash()
	}
	nav := make([]view.NavItem, 0, 6)
	root := "/" + string(role)
	nav = append(nav, view.NavItem{Title: "Painel", Path: root + "/dashboard"})
	for _, res := range h.catalogue.ForRole(role) {
		nav = append(nav, view.NavItem{Title: res.Title, Path: root + "/" + res.Slug})
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Role:        string(role),
		Nav:         nav,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func decodeRows(rows []fetch.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, raw := range rows {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Values renders q back into query parameters, without the page number.
func (q ListQuery) Values() url.Values {
	values := url.Values{}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Ordering != "" {
		values.Set("ordering", q.Ordering)
	}
	values.Set("page_size", strconv.Itoa(q.PageSize))
	return values
}
