package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"tierbot/internal/constants"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	StoreDriverJSON   = "json"
	StoreDriverSQLite = "sqlite"
)

type Config struct {
	DiscordToken      string
	DiscordEnabled    bool
	GuildID           string
	AnnounceChannelID string
	WebhookURL        string
	StoreDriver       string
	StorePath         string
	DBPath            string
	ServerPort        string
	AdminToken        string
	LogLevel          string
	SweepInterval     time.Duration
	Tiers             []string
	Regions           []string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}
	return FromEnv(logger)
}

// FromEnv builds the config from the process environment only.
func FromEnv(logger zerolog.Logger) (*Config, error) {
	sweepInterval, err := getDuration("SWEEP_INTERVAL", constants.DefaultSweepInterval)
	if err != nil {
		return nil, err
	}
	discordEnabled, err := getBool("DISCORD_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DiscordToken:      getEnv("DISCORD_TOKEN", ""),
		DiscordEnabled:    discordEnabled,
		GuildID:           getEnv("GUILD_ID", ""),
		AnnounceChannelID: getEnv("ANNOUNCE_CHANNEL_ID", ""),
		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverJSON)),
		StorePath:         getEnv("STORE_PATH", "tier_data.json"),
		DBPath:            getEnv("DB_PATH", "tiers.db"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		AdminToken:        getEnv("ADMIN_TOKEN", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SweepInterval:     sweepInterval,
		Tiers:             getList("TIERS"),
		Regions:           getList("REGIONS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Bool("discord_enabled", cfg.DiscordEnabled).
		Str("guild_id", cfg.GuildID).
		Str("announce_channel_id", cfg.AnnounceChannelID).
		Bool("webhook", cfg.WebhookURL != "").
		Str("store_driver", cfg.StoreDriver).
		Str("store_path", cfg.StorePath).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.GuildID == "" {
		return fmt.Errorf("GUILD_ID is required")
	}
	if c.DiscordEnabled && c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required when DISCORD_ENABLED is set")
	}
	switch c.StoreDriver {
	case StoreDriverJSON, StoreDriverSQLite:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverJSON, StoreDriverSQLite, c.StoreDriver)
	}
	if c.SweepInterval < constants.MinSweepInterval {
		return fmt.Errorf("SWEEP_INTERVAL must be at least %s", constants.MinSweepInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
