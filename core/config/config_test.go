package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Calendar.CacheBackend)
	assert.Equal(t, 8*time.Second, cfg.Calendar.ProviderTimeout)
	assert.Equal(t, "common", cfg.MicrosoftAPI.Tenant)
	assert.False(t, cfg.Calendar.WarmerEnabled)

	got, ok := GetSafe()
	require.True(t, ok)
	assert.Same(t, cfg, got)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "key")
	t.Setenv("CALENDAR_CACHE_BACKEND", "REDIS")
	t.Setenv("CALENDAR_PROVIDER_TIMEOUT", "3s")
	t.Setenv("CALENDAR_WARMER_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Calendar.CacheBackend)
	assert.Equal(t, 3*time.Second, cfg.Calendar.ProviderTimeout)
	assert.True(t, cfg.Calendar.WarmerEnabled)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "key")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_UnknownCacheBackend(t *testing.T) {
	cfg := &Config{
		JWT:      JWTConfig{Secret: "s"},
		Security: SecurityConfig{TokenEncryptionKey: "k"},
		Calendar: CalendarConfig{CacheBackend: "memcached"},
	}
	assert.Error(t, cfg.Validate())
}
