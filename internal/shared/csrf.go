package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const (
	// CSRFSessionKey is the profile value holding the current token.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"
	// CSRFHeader carries the token on script-driven requests.
	CSRFHeader = "X-CSRF-Token"
)

// CSRFManager issues and verifies CSRF tokens bound to a browser profile. A
// token is an HMAC over the profile id and a random nonce, so a token minted
// for one profile never verifies for another.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the profile's token, minting one on first use.
func (m *CSRFManager) EnsureToken(ctx context.Context, p *Profile) (string, error) {
	if p == nil {
		return "", ErrProfileMissing
	}
	if token := p.Get(CSRFSessionKey); token != "" {
		return token, nil
	}
	return m.Rotate(ctx, p)
}

// Rotate replaces the profile's token. Called whenever the authenticated
// identity behind the profile changes.
func (m *CSRFManager) Rotate(_ context.Context, p *Profile) (string, error) {
	if p == nil {
		return "", ErrProfileMissing
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	token := m.sign(p.ID, nonce)
	p.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken compares the supplied token with the profile's current token.
func (m *CSRFManager) VerifyToken(_ context.Context, p *Profile, token string) error {
	if p == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	expected := p.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) sign(profileID string, nonce []byte) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(profileID))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(append(nonce, mac.Sum(nil)...))
}
