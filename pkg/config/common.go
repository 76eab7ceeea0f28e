package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
)

// CommonConfig is embedded inline by every command's config.
type CommonConfig struct {
	LogLevel  string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" default:"json"`
}

func (c CommonConfig) Validate() error {
	var result error
	if err := oneOf("log_level", c.LogLevel, logLevels); err != nil {
		result = multierror.Append(result, err)
	}
	if err := oneOf("log_format", c.LogFormat, logFormats); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// oneOf matches value case-insensitively against allowed.
func oneOf(field, value string, allowed []string) error {
	if slices.Contains(allowed, strings.ToLower(value)) {
		return nil
	}
	return fmt.Errorf("%s must be one of [%s], got %q", field, strings.Join(allowed, ", "), value)
}
