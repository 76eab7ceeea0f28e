package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/chatwatch/internal/config"
	"github.com/lewisedginton/chatwatch/internal/server"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
	"github.com/lewisedginton/chatwatch/pkg/utils"
)

// RunCommand returns the command that watches a chat source until interrupted.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Watch a chat source and archive coordinate leaks and private conversations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "Chat source: stdin, file, tail or relay"},
			&cli.StringFlag{Name: "path", Usage: "Log file for the file and tail sources"},
			&cli.BoolFlag{Name: "from-start", Usage: "Tail source replays the existing file first"},
			&cli.StringFlag{Name: "relay-url", Usage: "Websocket URL for the relay source"},
			&cli.StringFlag{Name: "player", Usage: "Local player name"},
			&cli.StringFlag{Name: "server", Usage: "Server address (host:port)"},
			&cli.StringFlag{Name: "base-dir", Usage: "Archive base directory"},
			&cli.BoolFlag{Name: "http", Usage: "Enable the status and ingest server"},
		},
		Action: runAction,
	}
}

// applyRunFlags lets command-line flags override the loaded configuration.
func applyRunFlags(ctx *cli.Context, cfg *appconfig.AppConfig) error {
	if ctx.IsSet("source") {
		cfg.Source.Kind = ctx.String("source")
	}
	if ctx.IsSet("path") {
		cfg.Source.Path = ctx.String("path")
	}
	if ctx.IsSet("from-start") {
		cfg.Source.FromStart = ctx.Bool("from-start")
	}
	if ctx.IsSet("relay-url") {
		cfg.Source.RelayURL = ctx.String("relay-url")
	}
	if ctx.IsSet("player") {
		cfg.Player = ctx.String("player")
	}
	if ctx.IsSet("server") {
		cfg.Server = ctx.String("server")
	}
	if ctx.IsSet("base-dir") {
		cfg.BaseDir = ctx.String("base-dir")
	}
	if ctx.IsSet("http") {
		cfg.HTTP.Enabled = ctx.Bool("http")
	}
	return cfg.Validate()
}

//nolint:revive // cognitive-complexity: run orchestrates every long-lived component
func runAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		getLogger(ctx).Error("Failed to load config", logger.ErrorField(err))
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyRunFlags(ctx, &cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := configuredLogger(ctx, cfg)

	runCtx, cancel := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, cfg.Metrics.EnableArchiveMetrics, log)

	comps, err := buildComponents(runCtx, cfg, log, m)
	if err != nil {
		log.Error("Failed to build components", logger.ErrorField(err))
		return err
	}
	defer comps.Close()

	src, closeSource, err := buildSource(cfg.Source, ctx.App.Reader, log)
	if err != nil {
		log.Error("Failed to create source", logger.ErrorField(err))
		return err
	}
	if closeSource != nil {
		defer closeSource()
	}

	engine := comps.engine
	if err := engine.Activate(runCtx); err != nil {
		return fmt.Errorf("failed to activate: %w", err)
	}

	var errChans []<-chan error
	var forceClose func()
	if cfg.Metrics.ExposeMetrics {
		m.Listen(cfg.Metrics.Addr())
		errChans = append(errChans, m.Errors())
	}
	if cfg.HTTP.Enabled {
		srv, err := server.New(server.Config{
			HTTP:           cfg.HTTP.HTTPServerConfig,
			BaseDir:        cfg.BaseDir,
			RelayHealthURL: cfg.Source.RelayHealthURL,
			Logger:         log,
			Metrics:        m,
		}, engine)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		errChan, closer, gracefulCloser, err := srv.Listen()
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		defer gracefulCloser()
		errChans = append(errChans, errChan)
		forceClose = closer
	}

	go engine.RunTicker(runCtx, cfg.TickInterval)

	sourceDone := make(chan error, 1)
	go func() {
		log.Info("Starting chat source", logger.StringField("source", src.Name()))
		sourceDone <- src.Run(runCtx, engine)
	}()

	// A nil channel never fires, so no components means no fatal errors to wait for.
	var fatal <-chan error
	if len(errChans) > 0 {
		fatal = utils.MergeErrorChans(errChans...)
	}

	var runErr error
	select {
	case <-runCtx.Done():
		log.Info("Received shutdown signal")
	case err := <-sourceDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Chat source failed", logger.ErrorField(err))
			runErr = fmt.Errorf("source error: %w", err)
		} else {
			log.Info("Chat source finished")
		}
	case err := <-fatal:
		if err != nil {
			log.Error("Fatal server error occurred", logger.ErrorField(err))
			runErr = fmt.Errorf("server error: %w", err)
			if forceClose != nil {
				forceClose()
			}
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Mirror.Timeout+10*time.Second) //nolint:contextcheck // run context is already cancelled
	defer stop()
	if err := engine.Deactivate(shutdownCtx); err != nil { //nolint:contextcheck // see above
		log.Error("Deactivation finished with errors", logger.ErrorField(err))
	}
	if err := m.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // see above
		log.Error("Metrics listener shutdown error", logger.ErrorField(err))
	}
	log.Info("chatwatch stopped")
	return runErr
}
