package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HTTPServerConfig holds HTTP server settings. The status server runs next to a game
// client, so it binds to loopback unless told otherwise.
type HTTPServerConfig struct {
	Host string `env:"HTTP_HOST" yaml:"http_host" default:"127.0.0.1"`
	Port int    `env:"HTTP_PORT" yaml:"http_port" default:"8080"`

	ReadTimeoutSeconds  int `env:"HTTP_READ_TIMEOUT_SECONDS" yaml:"read_timeout_seconds" default:"15" min:"1"`
	WriteTimeoutSeconds int `env:"HTTP_WRITE_TIMEOUT_SECONDS" yaml:"write_timeout_seconds" default:"15" min:"1"`
	IdleTimeoutSeconds  int `env:"HTTP_IDLE_TIMEOUT_SECONDS" yaml:"idle_timeout_seconds" default:"60" min:"1"`
	MaxHeaderBytes      int `env:"HTTP_MAX_HEADER_BYTES" yaml:"max_header_bytes" default:"1048576"`
}

// Validate checks the port range and that Host is empty or an IP/hostname without a port.
func (h HTTPServerConfig) Validate() error {
	var result error
	if h.Port < 1 || h.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http port must be between 1-65535, got %d", h.Port))
	}
	if _, _, err := net.SplitHostPort(h.Host); err == nil {
		result = multierror.Append(result, fmt.Errorf("http_host must not include a port, got %q", h.Host))
	}
	return result
}

// Addr returns the listen address.
func (h HTTPServerConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// ReadTimeout returns the ReadTimeoutSeconds as a time.Duration
func (h HTTPServerConfig) ReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the WriteTimeoutSeconds as a time.Duration
func (h HTTPServerConfig) WriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the IdleTimeoutSeconds as a time.Duration
func (h HTTPServerConfig) IdleTimeout() time.Duration {
	return time.Duration(h.IdleTimeoutSeconds) * time.Second
}
