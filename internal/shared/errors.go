package shared

import "errors"

var (
	// ErrProfileMissing occurs when a handler runs without a loaded browser profile.
	ErrProfileMissing = errors.New("browser profile missing")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
