// internal/config/config_test.go
package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-scamguard/internal/config"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("EXEMPT_ROLES", "")
	t.Setenv("DB_HOST", "")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "Moderator", cfg.ModeratorRole)
	assert.InDelta(t, 0.7, cfg.ScamThreshold, 0.001)
	assert.Contains(t, cfg.ExemptRoles, "Admin")
	assert.Contains(t, cfg.ExemptRoles, "chat revive ping")
	assert.Empty(t, cfg.PostgresDSN)
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestFromEnvRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := config.FromEnv()
	require.Error(t, err)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("EXEMPT_ROLES", "Staff, VIP")
	t.Setenv("SCAM_THRESHOLD", "0.85")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "bot")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "moderation")
	t.Setenv("DB_PORT", "")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "?", cfg.CommandPrefix)
	assert.Equal(t, []string{"Staff", "VIP"}, cfg.ExemptRoles)
	assert.InDelta(t, 0.85, cfg.ScamThreshold, 0.001)
	assert.Equal(t,
		"host=db.internal user=bot password=secret dbname=moderation port=5432 sslmode=disable TimeZone=UTC",
		cfg.PostgresDSN)
}

func TestFromEnvRejectsBadThreshold(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("SCAM_THRESHOLD", "very high")

	_, err := config.FromEnv()
	require.Error(t, err)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("TIMEZONE", "Not/AZone")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Location().String())
}
