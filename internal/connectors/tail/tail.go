// Package tail follows a growing log file, such as the game client's latest.log, and
// turns appended lines into events.
package tail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/lewisedginton/chatwatch/internal/connectors"
	"github.com/lewisedginton/chatwatch/pkg/logger"
)

// Config configures a Tail.
type Config struct {
	Path string
	// FromStart replays the existing file contents before following.
	FromStart bool
	// Parse defaults to connectors.ParseClientLog.
	Parse connectors.ParseFunc
}

// Tail is a Source that follows one file. The file may not exist yet and may be
// replaced while running; a new file is read from the beginning.
type Tail struct {
	cfg Config
	log logger.Logger

	file    *os.File
	offset  int64
	partial []byte
}

// New validates cfg and creates a Tail.
func New(cfg Config, log logger.Logger) (*Tail, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("tail path is required")
	}
	if cfg.Parse == nil {
		cfg.Parse = connectors.ParseClientLog
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Path, err)
	}
	cfg.Path = abs
	return &Tail{cfg: cfg, log: log.WithFields(logger.FileField(abs))}, nil
}

// Name returns the source name used in logs.
func (t *Tail) Name() string { return "tail:" + filepath.Base(t.cfg.Path) }

// Run follows the file until ctx is cancelled.
func (t *Tail) Run(ctx context.Context, h connectors.Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	defer t.closeFile()

	// Watch the directory so rotation and late creation are seen.
	if err := watcher.Add(filepath.Dir(t.cfg.Path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(t.cfg.Path), err)
	}

	if err := t.open(!t.cfg.FromStart); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	t.drain(ctx, h)
	t.log.Info("Following log file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != t.cfg.Path {
				continue
			}
			t.handle(ctx, h, event)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Warn("Watcher error", logger.ErrorField(werr))
		}
	}
}

func (t *Tail) handle(ctx context.Context, h connectors.Handler, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		t.closeFile()
		if err := t.open(false); err != nil {
			t.log.Warn("Failed to open recreated file", logger.ErrorField(err))
			return
		}
		t.drain(ctx, h)
	case event.Has(fsnotify.Write):
		if t.file == nil {
			if err := t.open(false); err != nil {
				t.log.Warn("Failed to open file", logger.ErrorField(err))
				return
			}
		}
		t.drain(ctx, h)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		t.drain(ctx, h)
		t.closeFile()
	}
}

func (t *Tail) open(atEnd bool) error {
	f, err := os.Open(t.cfg.Path) //nolint:gosec // G304: operator-supplied log path
	if err != nil {
		return err
	}
	var offset int64
	if atEnd {
		if offset, err = f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return fmt.Errorf("seek %s: %w", t.cfg.Path, err)
		}
	}
	t.file = f
	t.offset = offset
	t.partial = nil
	return nil
}

func (t *Tail) closeFile() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
	t.partial = nil
}

// drain reads everything appended since the last call and dispatches complete lines.
func (t *Tail) drain(ctx context.Context, h connectors.Handler) {
	if t.file == nil {
		return
	}
	if info, err := t.file.Stat(); err == nil && info.Size() < t.offset {
		t.log.Info("Log file truncated, restarting from the beginning")
		if _, err := t.file.Seek(0, io.SeekStart); err == nil {
			t.offset = 0
			t.partial = nil
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := t.file.Read(buf)
		if n > 0 {
			t.offset += int64(n)
			t.partial = append(t.partial, buf[:n]...)
			t.emit(ctx, h)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Warn("Read failed", logger.ErrorField(err))
			}
			return
		}
	}
}

func (t *Tail) emit(ctx context.Context, h connectors.Handler) {
	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx < 0 {
			return
		}
		line := string(t.partial[:idx])
		t.partial = t.partial[idx+1:]
		if ev, ok := t.cfg.Parse(line); ok {
			connectors.Dispatch(ctx, h, ev)
		}
	}
}
