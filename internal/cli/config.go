package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/lewisedginton/chatwatch/pkg/logger"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration as YAML",
				Action: configShowAction,
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	log.Info("Validating configuration", logger.StringField("config_file", ctx.String("config-file")))

	if _, err := loadConfig(ctx); err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration validation passed")
	_, _ = fmt.Fprintln(ctx.App.Writer, "Configuration is valid")
	return nil
}

func configShowAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	enc := yaml.NewEncoder(ctx.App.Writer)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
