// Package tokentest mints access tokens for tests.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const signingKey = "tokentest-secret"

// Mint signs claims with a throwaway HMAC key.
func Mint(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return signed
}

// Access mints a token for subject and role expiring at exp.
func Access(t testing.TB, subject any, role string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": subject,
		"exp":     exp.Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	return Mint(t, claims)
}
