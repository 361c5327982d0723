package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pneutrack/console/internal/shared"
	"github.com/pneutrack/console/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// NavItem is one entry of the role navigation.
type NavItem struct {
	Title string
	Path  string
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Role        string
	Nav         []NavItem
	Data        any
}

var printer = message.NewPrinter(language.BrazilianPortuguese)

// FormatCount renders n with Brazilian digit grouping.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"count": FormatCount,
		"cell": func(row map[string]any, key string) string {
			v, ok := row[key]
			if !ok || v == nil {
				return ""
			}
			if f, ok := v.(float64); ok && f == float64(int64(f)) {
				return strconv.FormatInt(int64(f), 10)
			}
			return fmt.Sprint(v)
		},
		"pageURL": func(path string, query any, page int) string {
			values := url.Values{}
			if q, ok := query.(interface{ Values() url.Values }); ok {
				values = q.Values()
			}
			values.Set("page", strconv.Itoa(page))
			return path + "?" + values.Encode()
		},
		"add": func(a, b int) int { return a + b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template and writes it with status. The page is
// rendered to a buffer first so a template failure never leaves half a page.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
