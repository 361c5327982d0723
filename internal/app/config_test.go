package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("AUTH_BASE_URL", "https://auth.example.com")
	t.Setenv("API_BASE_URL", "https://api.example.com")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.RefreshPeriod)
	assert.Equal(t, 300*time.Second, cfg.RefreshThreshold)
	assert.True(t, cfg.RefreshScheduler)
	assert.Equal(t, "/api/token/", cfg.AuthLoginPath)
	assert.Equal(t, 20, cfg.DefaultPageSize)
	assert.False(t, cfg.AuditEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsRelativeBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_BASE_URL", "/api")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "API_BASE_URL")
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CSRF_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
