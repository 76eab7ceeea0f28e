// Package storage_manager provides the file backends archives are written to and shipped to.
// The local backend is the append-only primary store; mirror targets receive whole copies
// of archive files.
package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a file or object does not exist.
var ErrNotFound = errors.New("object not found")

// FileProvider is whole-file storage shared by every backend. Paths are slash separated
// and relative to the backend root.
type FileProvider interface {
	Read(ctx context.Context, path string) ([]byte, error)
	// Write creates or replaces path.
	Write(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	// List returns every file below prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Appender adds bytes to the end of a file, creating it and its parent directories if needed.
type Appender interface {
	Append(ctx context.Context, path string, data []byte) error
}

// Digester reports the content digest of a stored file without transferring it.
// A missing file yields ErrNotFound.
type Digester interface {
	Digest(ctx context.Context, path string) (string, error)
}

// ContentDigest is the hex SHA-256 of data, the form Digest reports.
func ContentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LocalFileProvider stores files below a base directory.
type LocalFileProvider struct {
	baseDir string
}

func NewLocalFileProvider(baseDir string) *LocalFileProvider {
	return &LocalFileProvider{baseDir: baseDir}
}

// BaseDir returns the root directory.
func (p *LocalFileProvider) BaseDir() string {
	return p.baseDir
}

func (p *LocalFileProvider) full(path string) string {
	return filepath.Join(p.baseDir, filepath.FromSlash(path))
}

func (p *LocalFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return readFile(p.full(path), path)
}

// Write replaces path via a temp file and rename so readers never see a partial copy.
func (p *LocalFileProvider) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return replaceFile(p.full(path), data)
}

// Append adds data to the end of path. Existing content is never rewritten.
func (p *LocalFileProvider) Append(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := p.full(path)
	if err := ensureParent(target); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: below the archive root
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return f.Close()
}

// EnsureDir creates dir and its parents below the base directory.
func (p *LocalFileProvider) EnsureDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(p.full(dir), 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func (p *LocalFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return fileExists(p.full(path))
}

func (p *LocalFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	return listFiles(p.baseDir, p.full(prefix))
}

func (p *LocalFileProvider) Digest(ctx context.Context, path string) (string, error) {
	data, err := p.Read(ctx, path)
	if err != nil {
		return "", err
	}
	return ContentDigest(data), nil
}

func readFile(full, path string) ([]byte, error) {
	data, err := os.ReadFile(full) //nolint:gosec // G304: below a configured root
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

func replaceFile(full string, data []byte) error {
	if err := ensureParent(full); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", full, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", full, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", full, err)
	}
	return nil
}

func ensureParent(full string) error {
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func fileExists(full string) (bool, error) {
	_, err := os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// listFiles returns regular files below dir, relative to root and slash separated.
// Dot files and dot directories (.git, in-flight temp files) are skipped.
func listFiles(root, dir string) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// S3FileProvider maps archive paths onto keys below prefix in one bucket.
type S3FileProvider struct {
	bucket string
	prefix string
	client S3Client
}

func NewS3FileProvider(bucket, prefix string, client S3Client) *S3FileProvider {
	return &S3FileProvider{bucket: bucket, prefix: strings.Trim(prefix, "/"), client: client}
}

func (p *S3FileProvider) key(path string) string {
	return joinPrefix(p.prefix, path)
}

func (p *S3FileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.client.GetObject(ctx, p.bucket, p.key(path))
}

// Write uploads data, recording its digest and ship time as object metadata.
func (p *S3FileProvider) Write(ctx context.Context, path string, data []byte) error {
	meta := map[string]string{
		digestMetaKey:       ContentDigest(data),
		"chatwatch-shipped": time.Now().UTC().Format(time.RFC3339),
	}
	return p.client.PutObject(ctx, p.bucket, p.key(path), data, meta)
}

func (p *S3FileProvider) Exists(ctx context.Context, path string) (bool, error) {
	_, err := p.client.HeadObject(ctx, p.bucket, p.key(path))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *S3FileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.client.ListObjects(ctx, p.bucket, p.key(prefix))
	if err != nil {
		return nil, err
	}
	return trimPrefix(keys, p.prefix), nil
}

// Digest reads the digest recorded at upload. Objects written by something else
// have none and report "" so they are always reshipped.
func (p *S3FileProvider) Digest(ctx context.Context, path string) (string, error) {
	meta, err := p.client.HeadObject(ctx, p.bucket, p.key(path))
	if err != nil {
		return "", err
	}
	return meta[digestMetaKey], nil
}

// PrefixedFileProvider scopes every path of an inner provider below prefix, so the
// archives of several hosts can share one target.
type PrefixedFileProvider struct {
	inner  FileProvider
	prefix string
}

func NewPrefixedFileProvider(inner FileProvider, prefix string) *PrefixedFileProvider {
	return &PrefixedFileProvider{inner: inner, prefix: strings.Trim(prefix, "/")}
}

func (p *PrefixedFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.inner.Read(ctx, joinPrefix(p.prefix, path))
}

func (p *PrefixedFileProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.inner.Write(ctx, joinPrefix(p.prefix, path), data)
}

func (p *PrefixedFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return p.inner.Exists(ctx, joinPrefix(p.prefix, path))
}

func (p *PrefixedFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	files, err := p.inner.List(ctx, joinPrefix(p.prefix, prefix))
	if err != nil {
		return nil, err
	}
	return trimPrefix(files, p.prefix), nil
}

// Digest forwards to the inner provider when it can digest.
func (p *PrefixedFileProvider) Digest(ctx context.Context, path string) (string, error) {
	d, ok := p.inner.(Digester)
	if !ok {
		return "", nil
	}
	return d.Digest(ctx, joinPrefix(p.prefix, path))
}

func joinPrefix(prefix, path string) string {
	path = strings.TrimPrefix(path, "/")
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix + "/"
	}
	return prefix + "/" + path
}

func trimPrefix(paths []string, prefix string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if prefix != "" {
			rest, ok := strings.CutPrefix(p, prefix+"/")
			if !ok {
				continue
			}
			p = rest
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
