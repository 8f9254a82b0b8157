package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("GUILD_ID", "1346134488547332217")
	t.Setenv("DISCORD_TOKEN", "token")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv(zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, cfg.DiscordEnabled)
	assert.Equal(t, StoreDriverJSON, cfg.StoreDriver)
	assert.Equal(t, "tier_data.json", cfg.StorePath)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.Nil(t, cfg.Tiers)
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("TIERS", "LT5, LT4 ,,HT1")
	t.Setenv("REGIONS", "NA,EU")

	cfg, err := FromEnv(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 90*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"LT5", "LT4", "HT1"}, cfg.Tiers)
	assert.Equal(t, []string{"NA", "EU"}, cfg.Regions)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"MissingGuild", map[string]string{"GUILD_ID": "", "DISCORD_TOKEN": "x"}, "GUILD_ID is required"},
		{"MissingToken", map[string]string{"GUILD_ID": "1", "DISCORD_TOKEN": ""}, "DISCORD_TOKEN is required"},
		{"BadDriver", map[string]string{"GUILD_ID": "1", "DISCORD_TOKEN": "x", "STORE_DRIVER": "redis"}, "STORE_DRIVER"},
		{"BadInterval", map[string]string{"GUILD_ID": "1", "DISCORD_TOKEN": "x", "SWEEP_INTERVAL": "soon"}, "invalid SWEEP_INTERVAL"},
		{"IntervalTooShort", map[string]string{"GUILD_ID": "1", "DISCORD_TOKEN": "x", "SWEEP_INTERVAL": "1s"}, "at least"},
		{"BadBool", map[string]string{"GUILD_ID": "1", "DISCORD_ENABLED": "maybe"}, "invalid DISCORD_ENABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv(zerolog.Nop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromEnv_DiscordDisabledNeedsNoToken(t *testing.T) {
	t.Setenv("GUILD_ID", "1")
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_ENABLED", "false")

	cfg, err := FromEnv(zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, cfg.DiscordEnabled)
}
