package config

import (
	"fmt"
	"net"
	"strconv"
)

// MetricsConfig controls the Prometheus collectors and the optional standalone listener.
// The collectors are also served on the status server's /metrics when that runs.
type MetricsConfig struct {
	// EnableHTTPMetrics counts status server responses by code.
	EnableHTTPMetrics bool `env:"METRICS_ENABLE_HTTP" yaml:"enable_http_metrics" default:"false"`
	// EnableArchiveMetrics counts lines, matches, sessions, rollovers and write failures.
	EnableArchiveMetrics bool `env:"METRICS_ENABLE_ARCHIVE" yaml:"enable_archive_metrics" default:"true"`

	ExposeMetrics bool   `env:"METRICS_EXPOSE" yaml:"expose_metrics" default:"false"`
	Host          string `env:"METRICS_HOST" yaml:"metrics_host" default:"127.0.0.1"`
	Port          int    `env:"METRICS_PORT" yaml:"metrics_port" default:"9090"`
}

// Validate only checks the listener settings when the listener is enabled.
func (m MetricsConfig) Validate() error {
	if !m.ExposeMetrics {
		return nil
	}
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("metrics port must be between 1-65535, got %d", m.Port)
	}
	return nil
}

// Addr is the standalone listener address.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}
