package cli

import (
	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/chatwatch/internal/config"
	"github.com/lewisedginton/chatwatch/pkg/logger"
)

const serviceName = "chatwatch"

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: serviceName,
	})
}

// loadConfig reads the --config-file (if any) and the environment. A --log-level flag
// overrides the configured level.
func loadConfig(ctx *cli.Context) (appconfig.AppConfig, error) {
	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		return appconfig.AppConfig{}, err
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	return cfg, nil
}

// configuredLogger builds the logger described by cfg and stores it for later lookups.
func configuredLogger(ctx *cli.Context, cfg appconfig.AppConfig) logger.Logger {
	log := logger.NewLogger(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Format:  cfg.LogFormat,
		Service: serviceName,
		Output:  ctx.App.ErrWriter,
	})
	if ctx.App.Metadata == nil {
		ctx.App.Metadata = map[string]interface{}{}
	}
	ctx.App.Metadata["logger"] = log
	return log
}
