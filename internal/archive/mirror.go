package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/chatwatch/internal/storage_manager"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

// Mirror copies finished archive files from the local store to a secondary backend.
// A nil *Mirror ships nothing.
type Mirror struct {
	source  storage_manager.FileProvider
	target  storage_manager.FileProvider
	timeout time.Duration
	log     logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	shipped map[string]time.Time
}

// NewMirror builds a Mirror reading from source and writing to target.
func NewMirror(source, target storage_manager.FileProvider, timeout time.Duration, log logger.Logger, m *metrics.Metrics) *Mirror {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Mirror{
		source:  source,
		target:  target,
		timeout: timeout,
		log:     log,
		metrics: m,
		shipped: map[string]time.Time{},
	}
}

// Ship copies the whole file at path. Missing local files, and files the target already
// holds unchanged, are skipped.
func (m *Mirror) Ship(ctx context.Context, path string) error {
	if m == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	data, err := m.source.Read(ctx, path)
	if err != nil {
		exists, existsErr := m.source.Exists(ctx, path)
		if existsErr == nil && !exists {
			return nil
		}
		m.metrics.WriteFailed(OutputMirror)
		return fmt.Errorf("mirror read %s: %w", path, err)
	}
	if m.upToDate(ctx, path, data) {
		m.log.Debug("Archive unchanged on mirror", logger.FileField(path))
		return nil
	}
	if err := m.target.Write(ctx, path, data); err != nil {
		m.metrics.WriteFailed(OutputMirror)
		m.log.Error("Failed to ship archive", logger.FileField(path), logger.ErrorField(err))
		return fmt.Errorf("mirror write %s: %w", path, err)
	}

	m.mu.Lock()
	m.shipped[path] = time.Now()
	m.mu.Unlock()
	m.log.Info("Shipped archive", logger.FileField(path), logger.IntField("bytes", len(data)))
	return nil
}

// upToDate reports whether the target already holds data at path. Targets that cannot
// digest are always rewritten.
func (m *Mirror) upToDate(ctx context.Context, path string, data []byte) bool {
	d, ok := m.target.(storage_manager.Digester)
	if !ok {
		return false
	}
	remote, err := d.Digest(ctx, path)
	return err == nil && remote != "" && remote == storage_manager.ContentDigest(data)
}

// ShipAll ships every path, collecting the failures.
func (m *Mirror) ShipAll(ctx context.Context, paths []string) error {
	var result error
	for _, p := range paths {
		if err := m.Ship(ctx, p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// ShipDir ships every local file below dir.
func (m *Mirror) ShipDir(ctx context.Context, dir string) error {
	if m == nil {
		return nil
	}
	files, err := m.source.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("mirror list %s: %w", dir, err)
	}
	return m.ShipAll(ctx, files)
}

// Shipped reports when path was last shipped.
func (m *Mirror) Shipped(path string) (time.Time, bool) {
	if m == nil {
		return time.Time{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.shipped[path]
	return at, ok
}
