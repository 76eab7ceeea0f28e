package archive

import (
	"context"
	"fmt"

	"github.com/lewisedginton/chatwatch/internal/storage_manager"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

// Output names used to label write failures.
const (
	OutputCoords  = "coords"
	OutputArchive = "archive"
	OutputDebug   = "debug"
	OutputMirror  = "mirror"
)

// Writer appends pre-formatted records to files below the base directory.
// Failures are logged and counted, then returned; nothing is retried.
type Writer struct {
	files   storage_manager.Appender
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewWriter builds a Writer over files. m may be nil.
func NewWriter(files storage_manager.Appender, log logger.Logger, m *metrics.Metrics) *Writer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Writer{files: files, log: log, metrics: m}
}

// Append writes record to path. output labels the failure counter.
func (w *Writer) Append(ctx context.Context, output, path, record string) error {
	if err := w.files.Append(ctx, path, []byte(record)); err != nil {
		w.metrics.WriteFailed(output)
		w.log.Error("Failed to append record",
			logger.FileField(path),
			logger.StringField("output", output),
			logger.ErrorField(err))
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}
