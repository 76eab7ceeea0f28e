package watchers

import (
	"context"
	"strings"
	"time"

	"github.com/lewisedginton/chatwatch/internal/archive"
	"github.com/lewisedginton/chatwatch/internal/chatline"
	"github.com/lewisedginton/chatwatch/internal/config"
	"github.com/lewisedginton/chatwatch/internal/coords"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

// CoordLogger appends leaked coordinates to the server's coordinate log.
type CoordLogger struct {
	cfg       config.CoordinateConfig
	extractor *coords.Extractor
	writer    *archive.Writer
	log       logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewCoordLogger builds a CoordLogger for cfg.
func NewCoordLogger(cfg config.CoordinateConfig, writer *archive.Writer, log logger.Logger, m *metrics.Metrics, now func() time.Time) *CoordLogger {
	return &CoordLogger{
		cfg: cfg,
		extractor: coords.NewExtractor(coords.Config{
			DetectXZ:          cfg.DetectXZ,
			IgnoreSpawnRadius: cfg.IgnoreSpawnRadius,
			SpawnRadius:       cfg.SpawnRadius,
			MinCoordValue:     cfg.MinCoordValue,
		}),
		writer:  writer,
		log:     log,
		metrics: m,
		now:     now,
	}
}

// Detect classifies line without writing anything. Own lines are skipped unless configured.
func (c *CoordLogger) Detect(line, player string) (coords.Match, coords.Outcome) {
	if !c.cfg.LogOwnCoordinates && chatline.IsOwn(line, player) {
		return coords.Match{}, coords.NoMatch
	}
	return c.extractor.Extract(line)
}

// Handle detects and records a coordinate in line.
func (c *CoordLogger) Handle(ctx context.Context, line, player string, layout archive.Layout) (coords.Outcome, error) {
	m, outcome := c.Detect(line, player)
	switch outcome {
	case coords.NoMatch:
		return outcome, nil
	case coords.Suppressed:
		c.metrics.CoordinateMatched(strings.ToLower(m.Kind.String()), true)
		return outcome, nil
	}

	sender := chatline.SenderName(line)
	path := layout.CoordinateLog()
	record := archive.Entry(c.now(), archive.CoordinateRecord(sender, m, line))
	if err := c.writer.Append(ctx, archive.OutputCoords, path, record); err != nil {
		return outcome, err
	}

	c.metrics.CoordinateMatched(strings.ToLower(m.Kind.String()), false)
	c.log.Info("Logged coordinates",
		logger.StringField("kind", m.Kind.String()),
		logger.StringField("sender", sender),
		logger.FileField(path))
	return outcome, nil
}
