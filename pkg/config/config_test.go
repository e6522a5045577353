package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Permits.RetainPlaintext)
	assert.Equal(t, 256, cfg.Permits.QRSize)
	assert.Equal(t, time.Minute, cfg.Permits.StatsCacheTTL)
	assert.False(t, cfg.Notifications.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PERMIT_VERIFY_BASE_URL", "https://permits.example.edu/verify/")
	t.Setenv("PERMIT_RETAIN_PLAINTEXT", "false")
	t.Setenv("NOTIFY_RETRY_DELAY", "bogus")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.edu, ,https://b.example.edu")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://permits.example.edu/verify", cfg.Permits.VerifyBaseURL)
	assert.False(t, cfg.Permits.RetainPlaintext)
	assert.Equal(t, 5*time.Second, cfg.Notifications.RetryDelay)
	assert.Equal(t, []string{"https://a.example.edu", "https://b.example.edu"}, cfg.CORS.AllowedOrigins)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
