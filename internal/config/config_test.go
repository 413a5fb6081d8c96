package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Verifies defaults for an in-memory deployment.
// Scope: Unit Test
// Expected: ignore policy, 1m codes, no rotation.
func TestConfig_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", DriverMemory)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "ignore", cfg.OAuth.UnknownScopePolicy)
	assert.Equal(t, time.Minute, cfg.OAuth.AuthCodeLifetime)
	assert.False(t, cfg.OAuth.RotateRefreshTokens)
	assert.Equal(t, CodeStoreDatabase, cfg.Store.CodeStore)
}

// TestPurpose: Verifies driver-specific validation.
// Scope: Unit Test
// Security: Misconfiguration must fail at startup
// Expected: errors for missing DB password, missing redis address and bad policy.
func TestConfig_Validate(t *testing.T) {
	t.Setenv("STORE_DRIVER", DriverPostgres)
	_, err := FromEnv()
	assert.ErrorContains(t, err, "DB_PASSWORD")

	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("CODE_STORE", CodeStoreRedis)
	_, err = FromEnv()
	assert.ErrorContains(t, err, "REDIS_ADDR")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("OAUTH_UNKNOWN_SCOPE_POLICY", "drop")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "OAUTH_UNKNOWN_SCOPE_POLICY")

	t.Setenv("OAUTH_UNKNOWN_SCOPE_POLICY", "reject")
	t.Setenv("OAUTH_REFRESH_ROTATION", "true")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.OAuth.RotateRefreshTokens)
}

// TestPurpose: Verifies malformed durations fall back to defaults.
// Scope: Unit Test
// Expected: default 30m refresh lifetime.
func TestConfig_DurationFallback(t *testing.T) {
	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("OAUTH_REFRESH_TOKEN_LIFETIME", "forever")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.OAuth.RefreshTokenLifetime)
}
