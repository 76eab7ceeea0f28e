package patterns

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultLuaTimeout bounds a single match(line) call.
const DefaultLuaTimeout = 50 * time.Millisecond

// LuaLoadTimeout bounds running the script's top-level code.
const LuaLoadTimeout = time.Second

// LuaMatcher runs a sandboxed script that defines a global function
//
//	function match(line)
//	  -- return nil, or a table {correspondent=..., content=..., direction="in"|"out"}
//	end
//
// Only the base, string, table and math libraries are available.
type LuaMatcher struct {
	name    string
	timeout time.Duration

	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

// NewLuaMatcher compiles script and checks that it defines match.
func NewLuaMatcher(name, script string, timeout time.Duration) (*LuaMatcher, error) {
	if timeout <= 0 {
		timeout = DefaultLuaTimeout
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	ctx, cancel := context.WithTimeout(context.Background(), LuaLoadTimeout)
	defer cancel()
	L.SetContext(ctx)
	err := L.DoString(script)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load lua patterns: %w", err)
	}
	fn, ok := L.GetGlobal("match").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("lua patterns script must define function match(line)")
	}
	return &LuaMatcher{name: name, timeout: timeout, L: L, fn: fn}, nil
}

// LoadLuaMatcher reads a script from path.
func LoadLuaMatcher(path string) (*LuaMatcher, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied script path
	if err != nil {
		return nil, fmt.Errorf("failed to read lua script: %w", err)
	}
	return NewLuaMatcher("lua:"+path, string(data), 0)
}

// openSafeLibraries opens base, string, table and math, minus the loaders.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	for _, unsafe := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(unsafe, lua.LNil)
	}
	lua.OpenString(L)
	lua.OpenTable(L)
	lua.OpenMath(L)
}

// Name implements Matcher.
func (m *LuaMatcher) Name() string { return m.name }

// Match implements Matcher. Script errors and timeouts count as no match.
func (m *LuaMatcher) Match(line string) (Match, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	m.L.SetContext(ctx)
	defer m.L.RemoveContext()

	if err := m.L.CallByParam(lua.P{Fn: m.fn, NRet: 1, Protect: true}, lua.LString(line)); err != nil {
		return Match{}, false
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return Match{}, false
	}
	res := Match{
		Correspondent: lua.LVAsString(tbl.RawGetString("correspondent")),
		Content:       lua.LVAsString(tbl.RawGetString("content")),
	}
	if dir := lua.LVAsString(tbl.RawGetString("direction")); dir != "" {
		if err := res.Direction.UnmarshalText([]byte(dir)); err != nil {
			return Match{}, false
		}
	}
	return res, true
}

// Close releases the Lua state.
func (m *LuaMatcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.L.Close()
}
