// Command mockapi serves a local stand-in for the auth and fleet APIs so the
// console can run without the real backend. Accounts share the password
// "console"; /api/v2 endpoints for vehicles always fail to exercise fallback.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

const password = "console"

type account struct {
	ID    int
	Role  string
	Actor bool
}

var accounts = map[string]account{
	"transportador@local": {ID: 1, Role: "transportador"},
	"revenda@local":       {ID: 2, Role: "revenda"},
	"borracharia@local":   {ID: 3, Role: "borracharia"},
	"recapagem@local":     {ID: 4, Role: "recapagem"},
	"motorista@local":     {ID: 5, Role: "motorista", Actor: true},
}

type server struct {
	key       []byte
	accessTTL time.Duration
	logger    *slog.Logger
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	addr := getenv("MOCKAPI_ADDR", ":8090")
	ttl, err := time.ParseDuration(getenv("MOCKAPI_ACCESS_TTL", "10m"))
	if err != nil {
		logger.Error("parse access ttl", slog.Any("error", err))
		os.Exit(1)
	}
	s := &server{key: []byte(getenv("MOCKAPI_KEY", "mockapi")), accessTTL: ttl, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Post("/api/token/", s.login)
	r.Post("/api/motoristas/login/", s.actorLogin)
	r.Post("/api/token/refresh/", s.refresh)
	r.Get("/api/v2/veiculos/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	r.Get("/api/veiculos/", s.bareList("placa", 12))
	r.Get("/api/v2/pneus/", s.envelope("numero_fogo", 57))
	r.Get("/api/v2/empresas/", s.envelope("razao_social", 4))

	logger.Info("mock api listening", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("listen", slog.Any("error", err))
		os.Exit(1)
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) authenticate(w http.ResponseWriter, r *http.Request, actor bool) (account, bool) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON inválido"})
		return account{}, false
	}
	acc, ok := accounts[strings.ToLower(body.Email)]
	if !ok || acc.Actor != actor || body.Password != password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Usuário ou senha inválidos"})
		return account{}, false
	}
	return acc, true
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access":  s.sign(acc, s.accessTTL),
		"refresh": s.sign(acc, 24*time.Hour),
		"user":    map[string]any{"id": acc.ID, "perfil": acc.Role},
	})
}

func (s *server) actorLogin(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens":   map[string]string{"access": s.sign(acc, s.accessTTL), "refresh": s.sign(acc, 24*time.Hour)},
		"redirect": "/motorista/dashboard",
	})
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON inválido"})
		return
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(body.Refresh, claims, func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	id, _ := claims["user_id"].(float64)
	role, _ := claims["role"].(string)
	writeJSON(w, http.StatusOK, map[string]string{"access": s.sign(account{ID: int(id), Role: role}, s.accessTTL)})
}

func (s *server) sign(acc account, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"user_id": acc.ID,
		"role":    acc.Role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		s.logger.Error("sign token", slog.Any("error", err))
	}
	return signed
}

func (s *server) envelope(field string, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := atoiDefault(r.URL.Query().Get("page"), 1)
		size := atoiDefault(r.URL.Query().Get("page_size"), 20)
		rows := make([]map[string]any, 0, size)
		for i := (page-1)*size + 1; i <= total && len(rows) < size; i++ {
			rows = append(rows, map[string]any{"id": i, field: fmt.Sprintf("%s-%03d", strings.ToUpper(field[:2]), i)})
		}
		var next any
		if page*size < total {
			next = fmt.Sprintf("%s?page=%d&page_size=%d", r.URL.Path, page+1, size)
		}
		var prev any
		if page > 1 {
			prev = fmt.Sprintf("%s?page=%d&page_size=%d", r.URL.Path, page-1, size)
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": total, "next": next, "previous": prev, "results": rows})
	}
}

func (s *server) bareList(field string, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows := make([]map[string]any, 0, total)
		for i := 1; i <= total; i++ {
			rows = append(rows, map[string]any{"id": i, field: fmt.Sprintf("ABC%04d", i)})
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func atoiDefault(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
