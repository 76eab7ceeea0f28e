package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// ClassifyCommand returns a dry-run command that prints how each line would be handled.
func ClassifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify chat lines without writing anything; reads stdin when no lines are given",
		ArgsUsage: "[line...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "player", Usage: "Local player name"},
			&cli.BoolFlag{Name: "pretty", Usage: "Indent the JSON output"},
		},
		Action: classifyAction,
	}
}

func classifyAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if ctx.IsSet("player") {
		cfg.Player = ctx.String("player")
	}
	log := configuredLogger(ctx, cfg)

	// Dry runs never mirror.
	cfg.Mirror.Backend = ""
	comps, err := buildComponents(ctx.Context, cfg, log, nil)
	if err != nil {
		return err
	}
	defer comps.Close()

	enc := json.NewEncoder(ctx.App.Writer)
	if ctx.Bool("pretty") {
		enc.SetIndent("", "  ")
	}
	emit := func(line string) error {
		return enc.Encode(comps.engine.Classify(line))
	}

	if ctx.NArg() > 0 {
		for _, line := range ctx.Args().Slice() {
			if err := emit(line); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(ctx.App.Reader)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := emit(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
