package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/chatwatch/internal/config"
	"github.com/lewisedginton/chatwatch/pkg/logger"
)

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	app := NewApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"chatwatch", "--env-file", ""}, args...)
	err := app.RunContext(context.Background(), full)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	good := writeFile(t, dir, "good.yaml", "spawn_radius: 2000\nsession_timeout_minutes: 10\n")
	out, err := runApp(t, "", "--config-file", good, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	bad := writeFile(t, dir, "bad.yaml", "spawn_radius: -5\nmax_messages_per_file: 5\n")
	_, err = runApp(t, "", "--config-file", bad, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn_radius")
	assert.Contains(t, err.Error(), "max_messages_per_file")
}

func TestConfigShow(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cfg.yaml", "player: Me\nspawn_radius: 2500\n")

	out, err := runApp(t, "", "--config-file", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "player: Me")
	assert.Contains(t, out, "spawn_radius: 2500")
}

func TestClassifyArgs(t *testing.T) {
	out, err := runApp(t, "", "classify", "--player", "Me", "<Steve> base at 1000 64 -2000", "PlayerA whispers to you: hi")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Steve", first["sender"])
	coord, ok := first["coordinate"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "XYZ", coord["kind"])
	assert.Equal(t, "1000", coord["x"])
	assert.Equal(t, false, coord["suppressed"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	msg, ok := second["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PlayerA", msg["correspondent"])
	assert.Equal(t, "incoming", msg["direction"])
	assert.Nil(t, second["coordinate"])
}

func TestClassifyStdin(t *testing.T) {
	out, err := runApp(t, "<Alex> spawn is 10 64 10\n\nTo Steve: hey\n", "classify")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"suppressed":true`)
	assert.Contains(t, lines[1], `"direction":"outgoing"`)
}

func TestRunFileSource(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive")
	logPath := writeFile(t, dir, "latest.log", strings.Join([]string{
		"[11:59:00] [main/INFO]: Setting user: Me",
		"[11:59:30] [Render thread/INFO]: Connecting to play.example.net, 25565",
		"[12:00:01] [Render thread/INFO]: [CHAT] <Steve> base at 1000 64 -2000",
		"[12:00:02] [Render thread/INFO]: [CHAT] PlayerA whispers to you: hi",
		"[13:00:00] [Render thread/INFO]: Disconnecting from server",
	}, "\n")+"\n")

	_, err := runApp(t, "", "run", "--source", "file", "--path", logPath, "--base-dir", base)
	require.NoError(t, err)

	coordsLog, err := os.ReadFile(filepath.Join(base, "ChatCoordLeaks", "ccl_play.example.net.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(coordsLog), "Player: Steve | Coords (XYZ): 1000, 64, -2000")

	archived, err := os.ReadFile(filepath.Join(base, "PrivateMessageArchiver", "play.example.net", "playera.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(archived), "CONVERSATION STARTED WITH PLAYERA")
	assert.Contains(t, string(archived), "hi")
	assert.Contains(t, string(archived), "CONVERSATION ENDED WITH PLAYERA - DISCONNECTED")
}

func TestRunRejectsInvalidFlags(t *testing.T) {
	_, err := runApp(t, "", "run", "--source", "tail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.path is required")
}

func TestBuildLibraryWithCustomRules(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "rules.yaml", "rules:\n  - anchor: \" pings you\"\n    mode: contains\n    direction: incoming\n")
	script := writeFile(t, dir, "rules.lua", "function match(line)\n  return nil\nend\n")

	lib, closer, err := buildLibrary(appconfig.PatternsConfig{File: rules, LuaScript: script}, logger.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer()

	m, ok := lib.Match("Alex pings you: yo")
	require.True(t, ok)
	assert.Equal(t, "Alex", m.Correspondent)
}

func TestBuildMirror(t *testing.T) {
	mirror, err := buildMirror(context.Background(), appconfig.MirrorConfig{}, nil, logger.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.Nil(t, mirror)

	mirror, err = buildMirror(context.Background(), appconfig.MirrorConfig{
		Backend:        appconfig.MirrorGit,
		GitPath:        filepath.Join(t.TempDir(), "mirror"),
		GitAuthorName:  "chatwatch",
		GitAuthorEmail: "chatwatch@localhost",
	}, nil, logger.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.NotNil(t, mirror)

	mirror, err = buildMirror(context.Background(), appconfig.MirrorConfig{
		Backend: appconfig.MirrorDir,
		DirPath: t.TempDir(),
	}, nil, logger.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.NotNil(t, mirror)

	_, err = buildMirror(context.Background(), appconfig.MirrorConfig{Backend: "ftp"}, nil, logger.NewNopLogger(), nil)
	assert.Error(t, err)
}

func TestBuildSourceKinds(t *testing.T) {
	log := logger.NewNopLogger()

	src, closer, err := buildSource(appconfig.SourceConfig{Kind: appconfig.SourceStdin}, strings.NewReader(""), log)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, "stdin", src.Name())

	src, _, err = buildSource(appconfig.SourceConfig{Kind: appconfig.SourceTail, Path: "latest.log"}, nil, log)
	require.NoError(t, err)
	assert.Equal(t, "tail:latest.log", src.Name())

	src, _, err = buildSource(appconfig.SourceConfig{Kind: appconfig.SourceRelay, RelayURL: "ws://localhost:9000/relay"}, nil, log)
	require.NoError(t, err)
	assert.Equal(t, "relay", src.Name())

	_, _, err = buildSource(appconfig.SourceConfig{Kind: appconfig.SourceFile, Path: filepath.Join(t.TempDir(), "missing.log")}, nil, log)
	assert.Error(t, err)
}
