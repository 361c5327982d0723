package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneutrack/console/internal/token"
	"github.com/pneutrack/console/internal/token/tokentest"
)

func TestDecodeReadsClaims(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := tokentest.Access(t, 42, "revenda", exp)

	claims, err := token.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), claims.Expiry)
	assert.Equal(t, "revenda", claims.Role)
	assert.Equal(t, "42", claims.SubjectID)
}

func TestDecodeFallsBackToAlternateClaimNames(t *testing.T) {
	raw := tokentest.Mint(t, jwt.MapClaims{
		"sub":          "abc-1",
		"tipo_usuario": "borracharia",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})

	claims, err := token.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc-1", claims.SubjectID)
	assert.Equal(t, "borracharia", claims.Role)
}

func TestDecodeRoleMayBeAbsent(t *testing.T) {
	raw := tokentest.Access(t, "7", "", time.Now().Add(time.Hour))

	claims, err := token.Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, claims.Role)
	assert.Equal(t, "7", claims.SubjectID)
}

func TestDecodeRejectsMalformedTokens(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"garbage":     "not-a-token",
		"bad payload": "eyJhbGciOiJIUzI1NiJ9.!!!.sig",
		"missing exp": tokentest.Mint(t, jwt.MapClaims{"user_id": 1}),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := token.Decode(raw)
			assert.ErrorIs(t, err, token.ErrDecode)
		})
	}
}

func TestClaimsExpiryArithmetic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	expired := token.Claims{Expiry: now.Unix() - 1}
	assert.True(t, expired.Expired(now))
	assert.Less(t, expired.TTL(now), time.Duration(0))

	atNow := token.Claims{Expiry: now.Unix()}
	assert.True(t, atNow.Expired(now))

	live := token.Claims{Expiry: now.Unix() + 200}
	assert.False(t, live.Expired(now))
	assert.Equal(t, 200*time.Second, live.TTL(now))
}
