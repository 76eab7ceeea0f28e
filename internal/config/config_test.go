package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "CHATWATCH_BASE_DIR", "CHATWATCH_PLAYER", "CHATWATCH_SERVER",
	"CHATWATCH_TICK_INTERVAL", "IGNORE_SPAWN_RADIUS", "SPAWN_RADIUS", "LOG_OWN_COORDINATES",
	"DETECT_XZ_COORDINATES", "MIN_COORD_VALUE", "LOG_OWN_MESSAGES", "INCLUDE_TIMESTAMPS",
	"MAX_MESSAGES_PER_FILE", "END_ON_DISCONNECT", "SESSION_TIMEOUT_MINUTES", "LOG_SESSION_MARKERS",
	"DEBUG_TO_FILE", "SOURCE_KIND", "SOURCE_PATH", "RELAY_URL", "HTTP_ENABLED", "HTTP_PORT",
	"MIRROR_BACKEND", "MIRROR_S3_BUCKET", "MIRROR_GIT_PATH", "METRICS_EXPOSE", "METRICS_PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, CoordinateConfig{
		IgnoreSpawnRadius: true,
		SpawnRadius:       1500,
		LogOwnCoordinates: false,
		DetectXZ:          true,
		MinCoordValue:     100,
	}, cfg.Coordinates)
	assert.Equal(t, MessageConfig{
		LogOwnMessages:        true,
		IncludeTimestamps:     true,
		MaxMessagesPerFile:    1000,
		EndOnDisconnect:       true,
		SessionTimeoutMinutes: 30,
		LogSessionMarkers:     true,
		DebugToFile:           false,
	}, cfg.Messages)
	assert.Equal(t, DefaultBaseDir, cfg.BaseDir)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, SourceStdin, cfg.Source.Kind)
	assert.Equal(t, 30*time.Minute, cfg.Messages.SessionTimeout())
	assert.False(t, cfg.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "chatwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
player: Steve
server: play.example.net:25565
ignore_spawn_radius: false
detect_xz_coordinates: false
max_messages_per_file: 100
log_session_markers: false
source:
  kind: tail
  path: /games/.minecraft/logs/latest.log
http:
  enabled: true
  http_port: 8181
mirror:
  backend: git
  git_path: /srv/archive
patterns:
  file: patterns.yaml
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Steve", cfg.Player)
	assert.False(t, cfg.Coordinates.IgnoreSpawnRadius)
	assert.False(t, cfg.Coordinates.DetectXZ)
	assert.Equal(t, 100, cfg.Messages.MaxMessagesPerFile)
	assert.False(t, cfg.Messages.LogSessionMarkers)
	assert.True(t, cfg.Messages.EndOnDisconnect)
	assert.Equal(t, SourceTail, cfg.Source.Kind)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 8181, cfg.HTTP.Port)
	assert.Equal(t, MirrorGit, cfg.Mirror.Backend)
	assert.Equal(t, "chatwatch", cfg.Mirror.GitAuthorName)
	assert.Equal(t, "patterns.yaml", cfg.Patterns.File)
}

func TestLoadRanges(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SPAWN_RADIUS", "50001"},
		{"SPAWN_RADIUS", "-5"},
		{"MIN_COORD_VALUE", "0"},
		{"MIN_COORD_VALUE", "10001"},
		{"MAX_MESSAGES_PER_FILE", "99"},
		{"MAX_MESSAGES_PER_FILE", "10001"},
		{"SESSION_TIMEOUT_MINUTES", "4"},
		{"SESSION_TIMEOUT_MINUTES", "481"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}

	t.Run("boundaries accepted", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SPAWN_RADIUS", "0")
		t.Setenv("MIN_COORD_VALUE", "10000")
		t.Setenv("MAX_MESSAGES_PER_FILE", "100")
		t.Setenv("SESSION_TIMEOUT_MINUTES", "480")
		_, err := Load("")
		assert.NoError(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"unknown source", func(c *AppConfig) { c.Source.Kind = "carrier-pigeon" }},
		{"tail without path", func(c *AppConfig) { c.Source.Kind = SourceTail }},
		{"file without path", func(c *AppConfig) { c.Source.Kind = SourceFile }},
		{"relay without url", func(c *AppConfig) { c.Source.Kind = SourceRelay }},
		{"dir without path", func(c *AppConfig) { c.Mirror.Backend = MirrorDir }},
		{"s3 without bucket", func(c *AppConfig) { c.Mirror.Backend = MirrorS3 }},
		{"git without path", func(c *AppConfig) { c.Mirror.Backend = MirrorGit }},
		{"unknown mirror", func(c *AppConfig) { c.Mirror.Backend = "ftp" }},
		{"zero tick", func(c *AppConfig) { c.TickInterval = 0 }},
		{"empty base dir", func(c *AppConfig) { c.BaseDir = "" }},
		{"bad http port", func(c *AppConfig) { c.HTTP.Enabled = true; c.HTTP.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
