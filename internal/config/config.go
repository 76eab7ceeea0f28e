// Package config holds the chatwatch application configuration.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	pkgconfig "github.com/lewisedginton/chatwatch/pkg/config"
)

// DefaultBaseDir is the directory all archive output lives under.
const DefaultBaseDir = "LambdaMeteorUtilities"

// AppConfig holds all application configuration
type AppConfig struct {
	pkgconfig.CommonConfig `yaml:",inline"`
	Coordinates            CoordinateConfig `yaml:",inline"`
	Messages               MessageConfig    `yaml:",inline"`

	BaseDir      string        `env:"CHATWATCH_BASE_DIR" yaml:"base_dir" default:"LambdaMeteorUtilities"`
	Player       string        `env:"CHATWATCH_PLAYER" yaml:"player"`
	Server       string        `env:"CHATWATCH_SERVER" yaml:"server"`
	TickInterval time.Duration `env:"CHATWATCH_TICK_INTERVAL" yaml:"tick_interval" default:"1s"`

	Source   SourceConfig            `yaml:"source"`
	HTTP     StatusServerConfig      `yaml:"http"`
	Metrics  pkgconfig.MetricsConfig `yaml:"metrics"`
	Mirror   MirrorConfig            `yaml:"mirror"`
	Patterns PatternsConfig          `yaml:"patterns"`
}

// CoordinateConfig controls coordinate leak detection.
type CoordinateConfig struct {
	IgnoreSpawnRadius bool `env:"IGNORE_SPAWN_RADIUS" yaml:"ignore_spawn_radius" default:"true"`
	SpawnRadius       int  `env:"SPAWN_RADIUS" yaml:"spawn_radius" default:"1500" min:"0" max:"50000"`
	LogOwnCoordinates bool `env:"LOG_OWN_COORDINATES" yaml:"log_own_coordinates" default:"false"`
	DetectXZ          bool `env:"DETECT_XZ_COORDINATES" yaml:"detect_xz_coordinates" default:"true"`
	MinCoordValue     int  `env:"MIN_COORD_VALUE" yaml:"min_coord_value" default:"100" min:"1" max:"10000"`
}

// MessageConfig controls private message archiving.
type MessageConfig struct {
	LogOwnMessages        bool `env:"LOG_OWN_MESSAGES" yaml:"log_own_messages" default:"true"`
	IncludeTimestamps     bool `env:"INCLUDE_TIMESTAMPS" yaml:"include_timestamps" default:"true"`
	MaxMessagesPerFile    int  `env:"MAX_MESSAGES_PER_FILE" yaml:"max_messages_per_file" default:"1000" min:"100" max:"10000"`
	EndOnDisconnect       bool `env:"END_ON_DISCONNECT" yaml:"end_on_disconnect" default:"true"`
	SessionTimeoutMinutes int  `env:"SESSION_TIMEOUT_MINUTES" yaml:"session_timeout_minutes" default:"30" min:"5" max:"480"`
	LogSessionMarkers     bool `env:"LOG_SESSION_MARKERS" yaml:"log_session_markers" default:"true"`
	DebugToFile           bool `env:"DEBUG_TO_FILE" yaml:"debug_to_file" default:"false"`
}

// SessionTimeout returns SessionTimeoutMinutes as a duration.
func (m MessageConfig) SessionTimeout() time.Duration {
	return time.Duration(m.SessionTimeoutMinutes) * time.Minute
}

// Source kinds.
const (
	SourceStdin = "stdin"
	SourceFile  = "file"
	SourceTail  = "tail"
	SourceRelay = "relay"
)

// SourceConfig selects where chat lines come from.
type SourceConfig struct {
	Kind           string        `env:"SOURCE_KIND" yaml:"kind" default:"stdin"`
	Path           string        `env:"SOURCE_PATH" yaml:"path"`
	FromStart      bool          `env:"SOURCE_FROM_START" yaml:"from_start" default:"false"`
	RelayURL       string        `env:"RELAY_URL" yaml:"relay_url"`
	RelayHealthURL string        `env:"RELAY_HEALTH_URL" yaml:"relay_health_url"`
	ReconnectDelay time.Duration `env:"RELAY_RECONNECT_DELAY" yaml:"reconnect_delay" default:"5s"`
}

// StatusServerConfig enables the HTTP status and ingest server.
type StatusServerConfig struct {
	Enabled                    bool `env:"HTTP_ENABLED" yaml:"enabled" default:"false"`
	pkgconfig.HTTPServerConfig `yaml:",inline"`
}

// Mirror backends.
const (
	MirrorNone = ""
	MirrorDir  = "dir"
	MirrorS3   = "s3"
	MirrorGit  = "git"
)

// MirrorConfig configures shipping of completed archive files to a secondary store.
type MirrorConfig struct {
	Backend        string        `env:"MIRROR_BACKEND" yaml:"backend"`
	DirPath        string        `env:"MIRROR_DIR_PATH" yaml:"dir_path"`
	S3Bucket       string        `env:"MIRROR_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix       string        `env:"MIRROR_S3_PREFIX" yaml:"s3_prefix"`
	S3Region       string        `env:"MIRROR_S3_REGION" yaml:"s3_region"`
	S3Profile      string        `env:"MIRROR_S3_PROFILE" yaml:"s3_profile"`
	S3StorageClass string        `env:"MIRROR_S3_STORAGE_CLASS" yaml:"s3_storage_class"`
	GitPath        string        `env:"MIRROR_GIT_PATH" yaml:"git_path"`
	GitAuthorName  string        `env:"MIRROR_GIT_AUTHOR_NAME" yaml:"git_author_name" default:"chatwatch"`
	GitAuthorEmail string        `env:"MIRROR_GIT_AUTHOR_EMAIL" yaml:"git_author_email" default:"chatwatch@localhost"`
	Timeout        time.Duration `env:"MIRROR_TIMEOUT" yaml:"timeout" default:"30s"`
}

// PatternsConfig points at optional user-supplied conversation rules.
type PatternsConfig struct {
	File      string `env:"PATTERNS_FILE" yaml:"file"`
	LuaScript string `env:"PATTERNS_LUA_SCRIPT" yaml:"lua_script"`
}

// Validate validates the configuration and returns an error if invalid
func (c AppConfig) Validate() error {
	var result error

	if err := c.CommonConfig.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.HTTP.Enabled {
		if err := c.HTTP.HTTPServerConfig.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := c.Metrics.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.BaseDir == "" {
		result = multierror.Append(result, fmt.Errorf("base_dir must not be empty"))
	}
	if c.TickInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if err := c.Source.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Mirror.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// Validate checks that the selected source kind has what it needs.
func (s SourceConfig) Validate() error {
	var result error
	if !slices.Contains([]string{SourceStdin, SourceFile, SourceTail, SourceRelay}, s.Kind) {
		return fmt.Errorf("source.kind must be one of [stdin, file, tail, relay], got %q", s.Kind)
	}
	if (s.Kind == SourceFile || s.Kind == SourceTail) && s.Path == "" {
		result = multierror.Append(result, fmt.Errorf("source.path is required for %s source", s.Kind))
	}
	if s.Kind == SourceRelay && s.RelayURL == "" {
		result = multierror.Append(result, fmt.Errorf("source.relay_url is required for relay source"))
	}
	if s.Kind == SourceRelay && s.ReconnectDelay <= 0 {
		result = multierror.Append(result, fmt.Errorf("source.reconnect_delay must be positive"))
	}
	return result
}

// Validate checks that the selected mirror backend is fully configured.
func (m MirrorConfig) Validate() error {
	switch m.Backend {
	case MirrorNone:
		return nil
	case MirrorDir:
		if m.DirPath == "" {
			return fmt.Errorf("mirror.dir_path is required for dir mirror")
		}
	case MirrorS3:
		if m.S3Bucket == "" {
			return fmt.Errorf("mirror.s3_bucket is required for s3 mirror")
		}
	case MirrorGit:
		if m.GitPath == "" {
			return fmt.Errorf("mirror.git_path is required for git mirror")
		}
	default:
		return fmt.Errorf("mirror.backend must be one of [dir, s3, git] or empty, got %q", m.Backend)
	}
	return nil
}

// Load reads path (optional) and the environment into an AppConfig.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
