// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all settings the bot reads from the environment. Values are
// snapshotted once at startup and never mutated afterwards.
type Config struct {
	DiscordToken   string
	CommandPrefix  string
	ExemptRoles    []string
	AuditChannelID string
	ModeratorRole  string
	DataDir        string
	Timezone       string
	ScamThreshold  float64

	// Optional ML detector.
	OpenAIKey   string
	OpenAIModel string

	// Optional Postgres archive, assembled from the same DB_* variables the
	// rest of our deployments use. Empty when DB_HOST is unset.
	PostgresDSN string
}

// FromEnv builds a Config from environment variables. Call godotenv.Load
// first if a .env file should be honored.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		CommandPrefix:  envOr("COMMAND_PREFIX", "!"),
		AuditChannelID: os.Getenv("LOG_CHANNEL_ID"),
		ModeratorRole:  envOr("MODERATOR_ROLE", "Moderator"),
		DataDir:        envOr("DATA_DIR", "data"),
		Timezone:       envOr("TIMEZONE", "UTC"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    envOr("MODEL_NAME", "gpt-4o-mini"),
	}

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not set")
	}

	for _, role := range strings.Split(envOr("EXEMPT_ROLES", "Admin,Moderator,executive,chat revive ping"), ",") {
		if role = strings.TrimSpace(role); role != "" {
			cfg.ExemptRoles = append(cfg.ExemptRoles, role)
		}
	}

	threshold := envOr("SCAM_THRESHOLD", "0.7")
	v, err := strconv.ParseFloat(threshold, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SCAM_THRESHOLD %q: %w", threshold, err)
	}
	cfg.ScamThreshold = v

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.PostgresDSN = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			host,
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			envOr("DB_PORT", "5432"),
		)
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC if the name
// is unknown rather than refusing to start.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
