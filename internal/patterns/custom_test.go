package patterns

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules(t *testing.T) {
	matchers, err := ParseRules([]byte(`
rules:
  - anchor: "PM from "
    mode: prefix
    direction: incoming
  - anchor: " privately says"
    mode: contains
    direction: in
  - anchor: "@"
    direction: out
    offset: 1
`))
	require.NoError(t, err)
	require.Len(t, matchers, 3)

	lib := NewLibrary(matchers...)

	got, ok := lib.Match("PM from Zed: meet at 100 64 200")
	require.True(t, ok)
	assert.Equal(t, Match{Correspondent: "Zed", Content: "meet at 100 64 200", Direction: Incoming, Rule: "prefix:PM from "}, got)

	got, ok = lib.Match("Yara privately says: hi")
	require.True(t, ok)
	assert.Equal(t, "Yara", got.Correspondent)

	got, ok = lib.Match("@Xavi: omw")
	require.True(t, ok)
	assert.Equal(t, "Xavi", got.Correspondent)
	assert.Equal(t, Outgoing, got.Direction)
}

func TestParseRulesErrors(t *testing.T) {
	_, err := ParseRules([]byte(`
rules:
  - anchor: ""
  - anchor: "x"
    mode: regex
  - anchor: "y"
    mode: contains
    offset: 2
  - anchor: "z"
    offset: -1
`))
	require.Error(t, err)
	for _, want := range []string{"rule 1", "rule 2", "rule 3", "rule 4"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = ParseRules([]byte("rules:\n  - anchor: a\n    direction: sideways\n"))
	assert.Error(t, err)

	_, err = ParseRules([]byte("rules: [unterminated"))
	assert.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - anchor: \"DM> \"\n"), 0o600))

	matchers, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, matchers, 1)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

const pmScript = `
function match(line)
  local name, msg = string.match(line, "^%[PM%] (%w+) says: (.+)$")
  if name == nil then
    return nil
  end
  return {correspondent = name, content = msg, direction = "in"}
end
`

func TestLuaMatcher(t *testing.T) {
	m, err := NewLuaMatcher("lua:test", pmScript, 0)
	require.NoError(t, err)
	defer m.Close()

	lib := Default().With(m)

	got, ok := lib.Match("[PM] Zed says: hello there")
	require.True(t, ok)
	assert.Equal(t, Match{Correspondent: "Zed", Content: "hello there", Direction: Incoming, Rule: "lua:test"}, got)

	_, ok = lib.Match("Zed says: hello there")
	assert.False(t, ok)
}

func TestLuaMatcherSandbox(t *testing.T) {
	_, err := NewLuaMatcher("lua:nofn", `x = 1`, 0)
	assert.Error(t, err)

	_, err = NewLuaMatcher("lua:dofile", `dofile("/etc/passwd")`, 0)
	assert.Error(t, err)

	m, err := NewLuaMatcher("lua:os", `function match(line) os.execute("true") end`, 0)
	require.NoError(t, err)
	defer m.Close()
	_, ok := m.Match("anything")
	assert.False(t, ok, "os is not available")
}

func TestLuaMatcherTimeout(t *testing.T) {
	m, err := NewLuaMatcher("lua:spin", `function match(line) while true do end end`, 20*time.Millisecond)
	require.NoError(t, err)
	defer m.Close()

	start := time.Now()
	_, ok := m.Match("anything")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLuaMatcherLoadTimeout(t *testing.T) {
	start := time.Now()
	_, err := NewLuaMatcher("lua:spin-load", `while true do end`, 0)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), LuaLoadTimeout+2*time.Second)
}

func TestLuaMatcherBadDirection(t *testing.T) {
	m, err := NewLuaMatcher("lua:dir", `function match(line) return {correspondent="a", content="b", direction="up"} end`, 0)
	require.NoError(t, err)
	defer m.Close()
	_, ok := m.Match("x")
	assert.False(t, ok)
}

func TestLoadLuaMatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.lua")
	require.NoError(t, os.WriteFile(path, []byte(pmScript), 0o600))

	m, err := LoadLuaMatcher(path)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "lua:"+path, m.Name())
}
