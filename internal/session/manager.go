package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pneutrack/console/internal/token"
)

const (
	// PrimaryFallbackRole is assumed when a back-office token carries no role.
	PrimaryFallbackRole = "transportador"
	// ActorFallbackRole is assumed when a field-operator token carries no role.
	ActorFallbackRole = "motorista"
)

// DashboardResolver maps a role to its landing path.
type DashboardResolver interface {
	DefaultDashboard(role string) string
}

// DashboardFunc adapts a function to DashboardResolver.
type DashboardFunc func(role string) string

// DefaultDashboard calls f.
func (f DashboardFunc) DefaultDashboard(role string) string {
	return f(role)
}

// EventKind names an auditable session transition.
type EventKind string

const (
	EventLoginSucceeded     EventKind = "login_succeeded"
	EventLoginFailed        EventKind = "login_failed"
	EventLogout             EventKind = "logout"
	EventRefreshed          EventKind = "refreshed"
	EventRefreshFailed      EventKind = "refresh_failed"
	EventSessionInvalidated EventKind = "session_invalidated"
)

// Event describes a session transition for auditing.
type Event struct {
	Kind      EventKind
	Profile   string
	SubjectID string
	Role      string
	Detail    string
	At        time.Time
}

// EventRecorder persists session events. Recording is best effort.
type EventRecorder interface {
	Record(ctx context.Context, event Event) error
}

// RefreshObserver counts refresh outcomes.
type RefreshObserver interface {
	ObserveRefresh(result string)
}

// Manager runs the session lifecycle for every browser profile.
type Manager struct {
	store      Store
	auth       Authenticator
	dashboards DashboardResolver
	logger     *slog.Logger
	recorder   EventRecorder
	observer   RefreshObserver
	now        func() time.Time

	refreshes singleflight.Group

	mu     sync.Mutex
	phases map[string]State
}

// NewManager constructs a Manager.
func NewManager(store Store, auth Authenticator, dashboards DashboardResolver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		auth:       auth,
		dashboards: dashboards,
		logger:     logger,
		now:        time.Now,
		phases:     make(map[string]State),
	}
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// WithRecorder attaches an audit recorder.
func (m *Manager) WithRecorder(recorder EventRecorder) *Manager {
	m.recorder = recorder
	return m
}

// WithObserver attaches a refresh metrics observer.
func (m *Manager) WithObserver(observer RefreshObserver) *Manager {
	m.observer = observer
	return m
}

// Store exposes the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Login authenticates against the primary endpoint, falling back to the
// field-operator endpoint when the primary one does not know the principal.
func (m *Manager) Login(ctx context.Context, profile, identifier, secret string) (LoginResult, error) {
	m.enter(profile, StateAuthenticating)
	defer m.leave(profile)

	creds := Credentials{Identifier: strings.TrimSpace(identifier), Secret: secret}
	grant, fallbackRole, err := m.exchange(ctx, creds)
	if err != nil {
		return LoginResult{}, m.loginFailed(ctx, profile, err)
	}

	claims, err := token.Decode(grant.Access)
	if err != nil {
		return LoginResult{}, m.loginFailed(ctx, profile, err)
	}
	if claims.SubjectID == "" {
		return LoginResult{}, m.loginFailed(ctx, profile, ErrMissingIdentity)
	}
	role := claims.Role
	if role == "" {
		role = fallbackRole
	}
	redirect := m.dashboards.DefaultDashboard(role)
	if grant.Redirect != "" {
		redirect = grant.Redirect
	}

	sess := Session{
		AccessToken:    grant.Access,
		RefreshToken:   grant.Refresh,
		Role:           role,
		SubjectID:      claims.SubjectID,
		Profile:        grant.User,
		RedirectTarget: redirect,
	}
	if err := m.store.Set(ctx, profile, sess); err != nil {
		return LoginResult{}, m.loginFailed(ctx, profile, fmt.Errorf("persist session: %w", err))
	}

	m.record(ctx, Event{Kind: EventLoginSucceeded, Profile: profile, SubjectID: sess.SubjectID, Role: role})
	m.logger.Info("login succeeded", slog.String("profile", profile), slog.String("role", role))
	return LoginResult{Role: role, RedirectTarget: redirect}, nil
}

func (m *Manager) exchange(ctx context.Context, creds Credentials) (Grant, string, error) {
	grant, err := m.auth.Login(ctx, creds)
	if err == nil {
		return grant, PrimaryFallbackRole, nil
	}
	if !triggersActorLogin(err) {
		return Grant{}, "", err
	}
	m.logger.Debug("primary login rejected, trying actor login", slog.Any("error", err))
	grant, actorErr := m.auth.ActorLogin(ctx, creds)
	if actorErr != nil {
		return Grant{}, "", errors.Join(err, actorErr)
	}
	return grant, ActorFallbackRole, nil
}

func triggersActorLogin(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound:
		return true
	default:
		return false
	}
}

func (m *Manager) loginFailed(ctx context.Context, profile string, err error) error {
	loginErr := &LoginError{Message: loginMessage(err), Err: err}
	m.record(ctx, Event{Kind: EventLoginFailed, Profile: profile, Detail: loginErr.Message})
	m.logger.Warn("login failed", slog.String("profile", profile), slog.Any("error", err))
	return loginErr
}

// loginMessage prefers the first server-provided message in the error chain.
func loginMessage(err error) string {
	if statusErr := findStatus(err, true); statusErr != nil {
		return statusErr.Message
	}
	switch {
	case errors.Is(err, ErrMissingIdentity):
		return "login response did not identify the user"
	case errors.Is(err, ErrUnreachable):
		return "authentication service unavailable"
	case errors.Is(err, token.ErrDecode):
		return "authentication service returned an unreadable token"
	}
	if statusErr := findStatus(err, false); statusErr != nil {
		return http.StatusText(statusErr.Status)
	}
	return "login failed"
}

// findStatus walks err depth first, including joined errors.
func findStatus(err error, withMessage bool) *StatusError {
	if err == nil {
		return nil
	}
	if statusErr, ok := err.(*StatusError); ok && (!withMessage || statusErr.Message != "") {
		return statusErr
	}
	switch wrapped := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range wrapped.Unwrap() {
			if statusErr := findStatus(inner, withMessage); statusErr != nil {
				return statusErr
			}
		}
	case interface{ Unwrap() error }:
		return findStatus(wrapped.Unwrap(), withMessage)
	}
	return nil
}

// Logout clears every slot of the profile's session. It never fails.
func (m *Manager) Logout(ctx context.Context, profile string) {
	if err := m.store.Clear(ctx, profile); err != nil {
		m.logger.Error("clear session", slog.String("profile", profile), slog.Any("error", err))
	}
	m.record(ctx, Event{Kind: EventLogout, Profile: profile})
}

// IsValid reports whether the profile holds a decodable, unexpired access token.
// Any other state is purged so stale tokens cannot linger.
func (m *Manager) IsValid(ctx context.Context, profile string) bool {
	sess, err := m.store.Get(ctx, profile)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.logger.Warn("load session", slog.String("profile", profile), slog.Any("error", err))
			m.invalidate(ctx, profile, err.Error())
		}
		return false
	}
	if sess.AccessToken == "" {
		m.invalidate(ctx, profile, "missing access token")
		return false
	}
	claims, err := token.Decode(sess.AccessToken)
	if err != nil {
		m.invalidate(ctx, profile, err.Error())
		return false
	}
	if claims.Expired(m.now()) {
		m.invalidate(ctx, profile, "access token expired")
		return false
	}
	return true
}

func (m *Manager) invalidate(ctx context.Context, profile, reason string) {
	if err := m.store.Clear(ctx, profile); err != nil {
		m.logger.Error("purge invalid session", slog.String("profile", profile), slog.Any("error", err))
	}
	m.record(ctx, Event{Kind: EventSessionInvalidated, Profile: profile, Detail: reason})
}

// Current returns the stored session for profile.
func (m *Manager) Current(ctx context.Context, profile string) (Session, error) {
	return m.store.Get(ctx, profile)
}

// Refresh exchanges the stored refresh token for a new access token. Only the
// access token is replaced. Any network or server failure logs the profile out;
// cancellation of ctx and an already missing session do not. Concurrent calls
// for one profile share a single exchange.
func (m *Manager) Refresh(ctx context.Context, profile string) error {
	_, err, _ := m.refreshes.Do(profile, func() (any, error) {
		return nil, m.refresh(ctx, profile)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context, profile string) error {
	m.enter(profile, StateRefreshing)
	defer m.leave(profile)

	sess, err := m.store.Get(ctx, profile)
	if errors.Is(err, ErrNoSession) {
		// logged out meanwhile; nothing to refresh and nothing to report
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if err != nil {
		return m.refreshFailed(ctx, profile, err)
	}
	access, err := m.auth.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if cause := ctx.Err(); cause != nil {
			return m.refreshAbandoned(profile, cause)
		}
		return m.refreshFailed(ctx, profile, err)
	}
	err = m.store.Update(ctx, profile, func(current Session) (Session, error) {
		if current.RefreshToken != sess.RefreshToken {
			return Session{}, errSessionReplaced
		}
		current.AccessToken = access
		return current, nil
	})
	if errors.Is(err, errSessionReplaced) {
		// A newer login owns the profile now; leave it alone.
		return nil
	}
	if errors.Is(err, ErrNoSession) {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if err != nil {
		if cause := ctx.Err(); cause != nil {
			return m.refreshAbandoned(profile, cause)
		}
		return m.refreshFailed(ctx, profile, err)
	}
	m.observe("success")
	m.record(ctx, Event{Kind: EventRefreshed, Profile: profile, SubjectID: sess.SubjectID, Role: sess.Role})
	return nil
}

var errSessionReplaced = errors.New("session: replaced during refresh")

// refreshAbandoned reports a refresh whose caller gave up, e.g. a scheduler
// being stopped. The refresh token was never rejected, so the session stays.
func (m *Manager) refreshAbandoned(profile string, cause error) error {
	m.logger.Debug("refresh abandoned", slog.String("profile", profile), slog.Any("error", cause))
	return fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
}

func (m *Manager) refreshFailed(ctx context.Context, profile string, cause error) error {
	m.observe("failure")
	m.logger.Warn("refresh failed, logging out", slog.String("profile", profile), slog.Any("error", cause))
	m.record(ctx, Event{Kind: EventRefreshFailed, Profile: profile, Detail: cause.Error()})
	m.Logout(ctx, profile)
	return fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
}

// State reports the lifecycle phase of profile.
func (m *Manager) State(ctx context.Context, profile string) State {
	m.mu.Lock()
	phase, busy := m.phases[profile]
	m.mu.Unlock()
	if busy {
		return phase
	}
	if _, err := m.store.Get(ctx, profile); err != nil {
		return StateLoggedOut
	}
	return StateAuthenticated
}

// AccessToken returns the profile's current access token.
func (m *Manager) AccessToken(ctx context.Context, profile string) (string, error) {
	sess, err := m.store.Get(ctx, profile)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// TokenSource binds the manager to one profile for outgoing API calls.
func (m *Manager) TokenSource(profile string) ProfileTokens {
	return ProfileTokens{manager: m, profile: profile}
}

// ProfileTokens yields the access token of one profile.
type ProfileTokens struct {
	manager *Manager
	profile string
}

// Token returns the access token the next request should carry.
func (p ProfileTokens) Token(ctx context.Context) (string, error) {
	return p.manager.AccessToken(ctx, p.profile)
}

func (m *Manager) enter(profile string, state State) {
	m.mu.Lock()
	m.phases[profile] = state
	m.mu.Unlock()
}

func (m *Manager) leave(profile string) {
	m.mu.Lock()
	delete(m.phases, profile)
	m.mu.Unlock()
}

func (m *Manager) record(ctx context.Context, event Event) {
	if m.recorder == nil {
		return
	}
	if event.At.IsZero() {
		event.At = m.now()
	}
	if err := m.recorder.Record(ctx, event); err != nil {
		m.logger.Warn("record session event", slog.String("kind", string(event.Kind)), slog.Any("error", err))
	}
}

func (m *Manager) observe(result string) {
	if m.observer != nil {
		m.observer.ObserveRefresh(result)
	}
}
