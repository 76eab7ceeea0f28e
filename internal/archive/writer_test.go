package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/chatwatch/internal/storage_manager"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

func TestWriterAppend(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(storage_manager.NewLocalFileProvider(dir), nil, nil)
	ctx := context.Background()

	path := Layout{Server: "srv"}.CoordinateLog()
	require.NoError(t, w.Append(ctx, OutputCoords, path, "first\n"))
	require.NoError(t, w.Append(ctx, OutputCoords, path, "second\n"))

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestWriterFailureIsCounted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ChatCoordLeaks"), []byte("not a dir"), 0o600))

	m := metrics.NewMetrics(false, true, logger.NewNopLogger())
	w := NewWriter(storage_manager.NewLocalFileProvider(dir), logger.NewNopLogger(), m)

	err := w.Append(context.Background(), OutputCoords, Layout{}.CoordinateLog(), "x\n")
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailuresCounter.WithLabelValues(OutputCoords)))
}

func TestMirrorShip(t *testing.T) {
	local := storage_manager.NewLocalFileProvider(t.TempDir())
	remote := storage_manager.NewLocalFileProvider(t.TempDir())
	mirror := NewMirror(local, storage_manager.NewPrefixedFileProvider(remote, "backup"), time.Second, nil, nil)
	ctx := context.Background()

	path := Layout{Server: "srv"}.Conversation("steve.txt")
	require.NoError(t, local.Append(ctx, path, []byte("FROM steve: hi\n")))

	require.NoError(t, mirror.Ship(ctx, path))
	data, err := remote.Read(ctx, "backup/"+path)
	require.NoError(t, err)
	assert.Equal(t, "FROM steve: hi\n", string(data))

	_, ok := mirror.Shipped(path)
	assert.True(t, ok)
}

// countingTarget counts writes reaching the wrapped provider.
type countingTarget struct {
	*storage_manager.LocalFileProvider
	writes int
}

func (c *countingTarget) Write(ctx context.Context, path string, data []byte) error {
	c.writes++
	return c.LocalFileProvider.Write(ctx, path, data)
}

func TestMirrorSkipsUnchangedArchives(t *testing.T) {
	local := storage_manager.NewLocalFileProvider(t.TempDir())
	target := &countingTarget{LocalFileProvider: storage_manager.NewLocalFileProvider(t.TempDir())}
	mirror := NewMirror(local, target, time.Second, nil, nil)
	ctx := context.Background()

	path := Layout{Server: "srv"}.Conversation("steve.txt")
	require.NoError(t, local.Append(ctx, path, []byte("FROM steve: hi\n")))

	require.NoError(t, mirror.Ship(ctx, path))
	require.NoError(t, mirror.Ship(ctx, path))
	assert.Equal(t, 1, target.writes)

	require.NoError(t, local.Append(ctx, path, []byte("TO steve: hey\n")))
	require.NoError(t, mirror.Ship(ctx, path))
	assert.Equal(t, 2, target.writes)
}

func TestMirrorSkipsMissingFiles(t *testing.T) {
	local := storage_manager.NewLocalFileProvider(t.TempDir())
	remote := storage_manager.NewLocalFileProvider(t.TempDir())
	mirror := NewMirror(local, remote, 0, nil, nil)

	assert.NoError(t, mirror.Ship(context.Background(), "nothing/here.txt"))
	_, ok := mirror.Shipped("nothing/here.txt")
	assert.False(t, ok)
}

func TestMirrorShipDir(t *testing.T) {
	local := storage_manager.NewLocalFileProvider(t.TempDir())
	remote := storage_manager.NewLocalFileProvider(t.TempDir())
	mirror := NewMirror(local, remote, time.Second, nil, nil)
	ctx := context.Background()

	layout := Layout{Server: "srv"}
	require.NoError(t, local.Append(ctx, layout.Conversation("a.txt"), []byte("a\n")))
	require.NoError(t, local.Append(ctx, layout.Conversation("b.txt"), []byte("b\n")))

	require.NoError(t, mirror.ShipDir(ctx, layout.ConversationDir()))
	files, err := remote.List(ctx, layout.ConversationDir())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{layout.Conversation("a.txt"), layout.Conversation("b.txt")}, files)
}

func TestNilMirror(t *testing.T) {
	var mirror *Mirror
	ctx := context.Background()
	assert.NoError(t, mirror.Ship(ctx, "x"))
	assert.NoError(t, mirror.ShipAll(ctx, []string{"x"}))
	assert.NoError(t, mirror.ShipDir(ctx, "x"))
}
