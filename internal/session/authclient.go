package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnreachable reports a transport failure talking to the auth API.
var ErrUnreachable = errors.New("session: auth service unreachable")

// Credentials identify a principal to the auth API.
type Credentials struct {
	Identifier string
	Secret     string
}

// Grant is a successful token exchange.
type Grant struct {
	Access   string
	Refresh  string
	Redirect string
	User     json.RawMessage
}

// Authenticator is the remote auth API collaborator.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (Grant, error)
	ActorLogin(ctx context.Context, creds Credentials) (Grant, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// StatusError is a non-2xx answer from the auth API.
type StatusError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auth api status %d", e.Status)
}

// AuthEndpoints locates the auth API operations.
type AuthEndpoints struct {
	BaseURL        string
	LoginPath      string
	ActorLoginPath string
	RefreshPath    string
}

// AuthClient talks JSON to the auth API.
type AuthClient struct {
	endpoints  AuthEndpoints
	httpClient *http.Client
}

// NewAuthClient constructs a client. A nil httpClient gets a 15s timeout client.
func NewAuthClient(endpoints AuthEndpoints, httpClient *http.Client) *AuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	endpoints.BaseURL = strings.TrimRight(endpoints.BaseURL, "/")
	return &AuthClient{endpoints: endpoints, httpClient: httpClient}
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string          `json:"access"`
	Refresh string          `json:"refresh"`
	User    json.RawMessage `json:"user,omitempty"`
}

type actorLoginResponse struct {
	Tokens struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	} `json:"tokens"`
	Redirect string          `json:"redirect,omitempty"`
	User     json.RawMessage `json:"user,omitempty"`
}

type refreshBody struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// Login calls the primary (back-office account) login endpoint.
func (c *AuthClient) Login(ctx context.Context, creds Credentials) (Grant, error) {
	var resp loginResponse
	if err := c.post(ctx, c.endpoints.LoginPath, credentialsBody{Email: creds.Identifier, Password: creds.Secret}, &resp); err != nil {
		return Grant{}, err
	}
	return Grant{Access: resp.Access, Refresh: resp.Refresh, User: resp.User}, nil
}

// ActorLogin calls the field-operator login endpoint.
func (c *AuthClient) ActorLogin(ctx context.Context, creds Credentials) (Grant, error) {
	var resp actorLoginResponse
	if err := c.post(ctx, c.endpoints.ActorLoginPath, credentialsBody{Email: creds.Identifier, Password: creds.Secret}, &resp); err != nil {
		return Grant{}, err
	}
	return Grant{
		Access:   resp.Tokens.Access,
		Refresh:  resp.Tokens.Refresh,
		Redirect: strings.TrimSpace(resp.Redirect),
		User:     resp.User,
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp refreshResponse
	if err := c.post(ctx, c.endpoints.RefreshPath, refreshBody{Refresh: refreshToken}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Access) == "" {
		return "", errors.New("session: refresh response has no access token")
	}
	return resp.Access, nil
}

func (c *AuthClient) post(ctx context.Context, path string, body any, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Message: serverMessage(raw), Body: raw}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("session: decode auth response: %w", err)
	}
	return nil
}

// serverMessage picks the most specific human message from an error body.
func serverMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error", "non_field_errors"} {
		if msg := messageOf(body[key]); msg != "" {
			return msg
		}
	}
	return ""
}

func messageOf(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for _, item := range v {
			if msg := messageOf(item); msg != "" {
				return msg
			}
		}
	}
	return ""
}

var _ Authenticator = (*AuthClient)(nil)
