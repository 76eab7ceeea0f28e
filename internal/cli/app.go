// Package cli implements the chatwatch command-line interface.
package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/chatwatch/pkg/logger"
)

// Version is overridden at build time.
var Version = "dev"

// NewApp assembles the chatwatch application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    serviceName,
		Usage:   "Archive coordinate leaks and private conversations from game chat",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Aliases: []string{"c"},
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Optional dotenv file loaded before configuration",
			},
		},
		Before: func(ctx *cli.Context) error {
			if path := ctx.String("env-file"); path != "" {
				if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			log := logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  "json",
				Service: serviceName,
				Output:  ctx.App.ErrWriter,
			})
			ctx.App.Metadata = map[string]interface{}{
				"logger": log,
			}
			return nil
		},
		Commands: []*cli.Command{
			RunCommand(),
			ClassifyCommand(),
			ConfigCommand(),
		},
	}
}
