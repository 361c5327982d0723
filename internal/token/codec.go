// Package token reads the claims embedded in bearer tokens issued by the auth API.
//
// The console never signs tokens and never holds the issuer key, so decoding is
// purely structural: the payload is parsed without verifying the signature. The
// resource API remains the authority that rejects forged or expired tokens.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDecode reports a token whose claims cannot be read. Callers treat it the same
// as an expired token.
var ErrDecode = errors.New("token: undecodable")

// Claims holds the fields the console reads from an access token.
type Claims struct {
	Expiry    int64
	Role      string
	SubjectID string
}

var (
	roleKeys    = []string{"role", "tipo_usuario", "user_type"}
	subjectKeys = []string{"user_id", "sub", "id"}
)

var parser = jwt.NewParser(jwt.WithJSONNumber())

// Decode extracts the claims of token without any network round trip.
func Decode(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrDecode)
	}
	mapClaims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrDecode)
	}
	return Claims{
		Expiry:    exp.Unix(),
		Role:      firstString(mapClaims, roleKeys),
		SubjectID: firstString(mapClaims, subjectKeys),
	}, nil
}

// ExpiresAt returns the expiry as a time value.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Expiry, 0)
}

// TTL is the remaining lifetime at now. It is negative once the token expired.
func (c Claims) TTL(now time.Time) time.Duration {
	return c.ExpiresAt().Sub(now)
}

// Expired reports whether the token is no longer valid at now.
func (c Claims) Expired(now time.Time) bool {
	return c.Expiry <= now.Unix()
}

func firstString(claims jwt.MapClaims, keys []string) string {
	for _, key := range keys {
		value, ok := claims[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
