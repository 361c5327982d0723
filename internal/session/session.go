// Package session owns the authenticated identity of each browser profile: the
// persisted token pair, the login and logout exchanges with the auth API, the
// validity check used by route guards and the background refresh scheduler.
package session

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNoSession reports that the profile is logged out.
	ErrNoSession = errors.New("session: not found")
	// ErrPartialSession rejects a write that lacks tokens or identity.
	ErrPartialSession = errors.New("session: incomplete session")
	// ErrMissingIdentity reports a login response whose token carries no subject id.
	ErrMissingIdentity = errors.New("session: login response has no subject id")
	// ErrRefreshFailed wraps every refresh failure; the session is gone afterwards.
	ErrRefreshFailed = errors.New("session: refresh failed")
)

// Session is the persisted identity of one browser profile. The six slots are
// always written and cleared together.
type Session struct {
	AccessToken    string          `json:"access_token"`
	RefreshToken   string          `json:"refresh_token"`
	Role           string          `json:"role"`
	SubjectID      string          `json:"subject_id"`
	Profile        json.RawMessage `json:"profile,omitempty"`
	RedirectTarget string          `json:"redirect_target"`
}

// Complete reports whether s satisfies the logged-in invariant.
func (s Session) Complete() bool {
	return strings.TrimSpace(s.AccessToken) != "" &&
		strings.TrimSpace(s.RefreshToken) != "" &&
		strings.TrimSpace(s.Role) != "" &&
		strings.TrimSpace(s.SubjectID) != ""
}

// State is the lifecycle phase of a profile's session.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// LoginResult is what a screen needs after a successful login.
type LoginResult struct {
	Role           string
	RedirectTarget string
}

// LoginError carries the most specific message the auth API produced while keeping
// the underlying failure for logs.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "login failed"
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
