package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneutrack/console/internal/session"
	"github.com/pneutrack/console/internal/token/tokentest"
)

func newAuthServer(t *testing.T, mux *http.ServeMux) *session.AuthClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return session.NewAuthClient(session.AuthEndpoints{
		BaseURL:        srv.URL + "/",
		LoginPath:      "/api/token/",
		ActorLoginPath: "/api/motoristas/login/",
		RefreshPath:    "/api/token/refresh/",
	}, srv.Client())
}

func TestAuthClientLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body["email"])
		assert.Equal(t, "pw", body["password"])
		_, _ = w.Write([]byte(`{"access":"A","refresh":"R","user":{"id":1}}`))
	})
	client := newAuthServer(t, mux)

	grant, err := client.Login(context.Background(), session.Credentials{Identifier: "a@b.com", Secret: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "A", grant.Access)
	assert.Equal(t, "R", grant.Refresh)
	assert.JSONEq(t, `{"id":1}`, string(grant.User))
}

func TestAuthClientActorLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/motoristas/login/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokens":{"access":"A","refresh":"R"},"redirect":"/motorista/dashboard"}`))
	})
	client := newAuthServer(t, mux)

	grant, err := client.ActorLogin(context.Background(), session.Credentials{Identifier: "x@y.com", Secret: "pw"})
	require.NoError(t, err)
	assert.Equal(t, session.Grant{Access: "A", Refresh: "R", Redirect: "/motorista/dashboard"}, grant)
}

func TestAuthClientRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refresh"] != "R" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Token is invalid or expired","code":"token_not_valid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access":"A2"}`))
	})
	client := newAuthServer(t, mux)

	access, err := client.Refresh(context.Background(), "R")
	require.NoError(t, err)
	assert.Equal(t, "A2", access)

	_, err = client.Refresh(context.Background(), "revoked")
	var statusErr *session.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Equal(t, "Token is invalid or expired", statusErr.Message)
}

func TestAuthClientExtractsServerMessages(t *testing.T) {
	cases := map[string]string{
		`{"detail":"Conta inativa"}`:                     "Conta inativa",
		`{"message":"Usuário não encontrado"}`:           "Usuário não encontrado",
		`{"error":"bloqueado"}`:                          "bloqueado",
		`{"non_field_errors":["Credenciais inválidas"]}`: "Credenciais inválidas",
		`not json`: "",
	}
	for body, want := range cases {
		t.Run(want, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(body))
			})
			client := newAuthServer(t, mux)

			_, err := client.Login(context.Background(), session.Credentials{Identifier: "a", Secret: "b"})
			var statusErr *session.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusBadRequest, statusErr.Status)
			assert.Equal(t, want, statusErr.Message)
		})
	}
}

func TestAuthClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	client := session.NewAuthClient(session.AuthEndpoints{BaseURL: base, LoginPath: "/api/token/"}, nil)

	_, err := client.Login(context.Background(), session.Credentials{Identifier: "a", Secret: "b"})
	assert.ErrorIs(t, err, session.ErrUnreachable)
}

func TestLoginAgainstAuthServerFallsBackToActorEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	})
	actorAccess := ""
	mux.HandleFunc("/api/motoristas/login/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tokens":   map[string]string{"access": actorAccess, "refresh": "R"},
			"redirect": "/motorista/dashboard",
		})
	})
	client := newAuthServer(t, mux)
	actorAccess = tokentest.Access(t, 7, "", time.Now().Add(time.Hour))

	store := session.NewMemoryStore()
	manager := session.NewManager(store, client, dashboards(), nil)

	result, err := manager.Login(context.Background(), "p1", "x@y.com", "bad")
	require.NoError(t, err)
	assert.Equal(t, "motorista", result.Role)
	assert.Equal(t, "/motorista/dashboard", result.RedirectTarget)
}
