package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lewisedginton/chatwatch/internal/archive"
	appconfig "github.com/lewisedginton/chatwatch/internal/config"
	"github.com/lewisedginton/chatwatch/internal/connectors"
	"github.com/lewisedginton/chatwatch/internal/connectors/reader"
	"github.com/lewisedginton/chatwatch/internal/connectors/relay"
	"github.com/lewisedginton/chatwatch/internal/connectors/tail"
	"github.com/lewisedginton/chatwatch/internal/patterns"
	"github.com/lewisedginton/chatwatch/internal/storage_manager"
	"github.com/lewisedginton/chatwatch/internal/watchers"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

// components is everything a command needs, built from one AppConfig.
type components struct {
	files   *storage_manager.LocalFileProvider
	library *patterns.Library
	mirror  *archive.Mirror
	engine  *watchers.Engine
	closers []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildComponents creates the pattern library, the optional mirror and the engine.
func buildComponents(ctx context.Context, cfg appconfig.AppConfig, log logger.Logger, m *metrics.Metrics) (*components, error) {
	c := &components{files: storage_manager.NewLocalFileProvider(cfg.BaseDir)}

	library, closeLua, err := buildLibrary(cfg.Patterns, log)
	if err != nil {
		return nil, err
	}
	c.library = library
	if closeLua != nil {
		c.closers = append(c.closers, closeLua)
	}

	c.mirror, err = buildMirror(ctx, cfg.Mirror, c.files, log, m)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.engine, err = watchers.NewEngine(watchers.Settings{
		Coordinates: cfg.Coordinates,
		Messages:    cfg.Messages,
		Player:      cfg.Player,
		Server:      cfg.Server,
	}, watchers.Deps{
		Files:   c.files,
		Library: library,
		Mirror:  c.mirror,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return c, nil
}

// buildLibrary appends the YAML rules and Lua script, in that order, after the built-in rules.
func buildLibrary(cfg appconfig.PatternsConfig, log logger.Logger) (*patterns.Library, func(), error) {
	library := patterns.Default()

	if cfg.File != "" {
		rules, err := patterns.LoadRules(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		library = library.With(rules...)
		log.Info("Loaded custom conversation rules",
			logger.FileField(cfg.File), logger.IntField("rules", len(rules)))
	}

	if cfg.LuaScript == "" {
		return library, nil, nil
	}
	lua, err := patterns.LoadLuaMatcher(cfg.LuaScript)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Loaded lua conversation matcher", logger.FileField(cfg.LuaScript))
	return library.With(lua), lua.Close, nil
}

// buildMirror returns nil when no mirror backend is configured.
func buildMirror(ctx context.Context, cfg appconfig.MirrorConfig, files storage_manager.FileProvider, log logger.Logger, m *metrics.Metrics) (*archive.Mirror, error) {
	target := storage_manager.TargetConfig{Backend: storage_manager.BackendType(cfg.Backend)}

	switch cfg.Backend {
	case appconfig.MirrorNone:
		return nil, nil

	case appconfig.MirrorDir:
		log.Info("Mirroring archives to directory", logger.FileField(cfg.DirPath))
		target.Dir = cfg.DirPath

	case appconfig.MirrorS3:
		log.Info("Mirroring archives to S3",
			logger.StringField("bucket", cfg.S3Bucket),
			logger.StringField("prefix", cfg.S3Prefix),
			logger.StringField("region", cfg.S3Region))

		var opts []func(*awsconfig.LoadOptions) error
		if cfg.S3Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
		}
		if cfg.S3Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		target.S3 = &storage_manager.S3Config{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			StorageClass: cfg.S3StorageClass,
			Client:       s3.NewFromConfig(awsCfg),
		}

	case appconfig.MirrorGit:
		log.Info("Mirroring archives to git", logger.FileField(cfg.GitPath))
		target.Git = &storage_manager.GitProviderOptions{
			Path:          cfg.GitPath,
			AuthorName:    cfg.GitAuthorName,
			AuthorEmail:   cfg.GitAuthorEmail,
			InitIfMissing: true,
		}

	default:
		return nil, fmt.Errorf("unsupported mirror backend: %s", cfg.Backend)
	}

	provider, err := storage_manager.OpenTarget(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror target: %w", err)
	}
	return archive.NewMirror(files, provider, cfg.Timeout, log, m), nil
}

// buildSource creates the configured chat source. stdin sources read plain chat lines;
// file sources replay a client log.
func buildSource(cfg appconfig.SourceConfig, stdin io.Reader, log logger.Logger) (connectors.Source, func(), error) {
	switch cfg.Kind {
	case appconfig.SourceStdin:
		return reader.New("stdin", stdin, connectors.PlainChat, log), nil, nil

	case appconfig.SourceFile:
		f, err := os.Open(cfg.Path) //nolint:gosec // G304: operator-supplied log path
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open source file: %w", err)
		}
		return reader.New(cfg.Path, f, connectors.ParseClientLog, log), func() { _ = f.Close() }, nil

	case appconfig.SourceTail:
		src, err := tail.New(tail.Config{Path: cfg.Path, FromStart: cfg.FromStart}, log)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil

	case appconfig.SourceRelay:
		src, err := relay.New(relay.Config{URL: cfg.RelayURL, ReconnectDelay: cfg.ReconnectDelay}, log)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported source kind: %s", cfg.Kind)
}
