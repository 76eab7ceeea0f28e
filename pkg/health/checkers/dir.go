package checkers

import (
	"context"
	"fmt"
	"os"
)

// WritableDirChecker verifies that the archive base directory exists and accepts new files.
type WritableDirChecker struct {
	dir  string
	name string
}

// NewWritableDirChecker checks dir. An empty name defaults to "dir:<dir>".
func NewWritableDirChecker(dir, name string) *WritableDirChecker {
	if name == "" {
		name = "dir:" + dir
	}
	return &WritableDirChecker{dir: dir, name: name}
}

// Name returns the name of this health check.
func (d *WritableDirChecker) Name() string { return d.name }

// Check creates the directory if needed and round-trips a temp file through it.
func (d *WritableDirChecker) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", d.dir, err)
	}
	f, err := os.CreateTemp(d.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%s not writable: %w", d.dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
