package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/delve/internal/game/dice"
	"github.com/cory-johannsen/delve/internal/scripting"
)

func newTestManager(t testing.TB, limit int) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	roller := dice.NewLoggedRoller(dice.NewSeededSource(7), logger)
	mgr := scripting.NewManager(roller, logger, limit)
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func TestManager_LoadString_CallsHookWithArgs(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	require.NoError(t, mgr.LoadString("effects", "hooks.lua", `
		function add(args)
			return args.a + args.b
		end
	`))
	ret, err := mgr.Call("effects", "add", map[string]any{"a": 3, "b": 4})
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(7), ret)
}

func TestManager_Call_NestedArgs(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	require.NoError(t, mgr.LoadString("ai", "hooks.lua", `
		function inspect(args)
			return args.self.name .. ":" .. #args.tags .. ":" .. tostring(args.enraged)
		end
	`))
	ret, err := mgr.Call("ai", "inspect", map[string]any{
		"self":    map[string]any{"name": "Ogre"},
		"tags":    []string{"brute", "large"},
		"enraged": true,
	})
	require.NoError(t, err)
	assert.Equal(t, lua.LString("Ogre:2:true"), ret)
}

func TestManager_Call_MissingHookIsNoOp(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	require.NoError(t, mgr.LoadString("effects", "empty.lua", `-- no functions`))
	ret, err := mgr.Call("effects", "nonexistent", nil)
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_Call_UnknownScopeLogsInfo(t *testing.T) {
	mgr, logs := newTestManager(t, 0)
	ret, err := mgr.Call("nowhere", "hook", nil)
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterMessage("scripting: no VM for scope").Len())
}

func TestManager_Call_RuntimeErrorWarns(t *testing.T) {
	mgr, logs := newTestManager(t, 0)
	require.NoError(t, mgr.LoadString("effects", "bad.lua", `
		function bad_hook()
			error("intentional error")
		end
	`))
	ret, err := mgr.Call("effects", "bad_hook", nil)
	assert.Error(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())
}

func TestManager_Call_InstructionLimitPerCall(t *testing.T) {
	mgr, _ := newTestManager(t, 1000)
	require.NoError(t, mgr.LoadString("effects", "loop.lua", `
		function spin() while true do end end
		function quick() return 1 end
	`))
	_, err := mgr.Call("effects", "spin", nil)
	assert.Error(t, err)
	for i := 0; i < 5; i++ {
		ret, err := mgr.Call("effects", "quick", nil)
		require.NoError(t, err, "the budget resets for each call")
		assert.Equal(t, lua.LNumber(1), ret)
	}
}

func TestManager_LoadFS_OrderedByName(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	fsys := fstest.MapFS{
		"scripts/a.lua":     {Data: []byte(`base_val = 10`)},
		"scripts/b.lua":     {Data: []byte(`function get_val() return base_val end`)},
		"scripts/notes.txt": {Data: []byte(`ignored`)},
	}
	require.NoError(t, mgr.LoadFS("effects", fsys, "scripts"))
	ret, err := mgr.Call("effects", "get_val", nil)
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(10), ret)
	assert.Equal(t, []string{"effects"}, mgr.Scopes())
}

func TestManager_LoadDirectory(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "init.lua"), []byte(`function x() return 5 end`), 0o644))
	require.NoError(t, mgr.LoadDirectory("ai", dir))
	ret, err := mgr.Call("ai", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(5), ret)

	assert.Error(t, mgr.LoadDirectory("ai", filepath.Join(dir, "missing")))
}

func TestManager_InvalidLuaKeepsPreviousVM(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	require.NoError(t, mgr.LoadString("effects", "good.lua", `function ok() return true end`))
	assert.Error(t, mgr.LoadString("effects", "bad.lua", `this is not valid lua @@@@`))
	ret, err := mgr.Call("effects", "ok", nil)
	require.NoError(t, err)
	assert.Equal(t, lua.LTrue, ret)
}

func TestManager_Close_ReleasesScopes(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	require.NoError(t, mgr.LoadString("effects", "init.lua", `function get_x() return 1 end`))
	mgr.Close()
	ret, err := mgr.Call("effects", "get_x", nil)
	assert.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Empty(t, mgr.Scopes())
}

func TestNewManager_PanicsOnNilCollaborators(t *testing.T) {
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), zap.NewNop())
	assert.Panics(t, func() { scripting.NewManager(nil, zap.NewNop(), 0) })
	assert.Panics(t, func() { scripting.NewManager(roller, nil, 0) })
}

func TestProperty_CallMissingScopeNeverPanics(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	rapid.Check(t, func(rt *rapid.T) {
		scope := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "scope")
		hook := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "hook")
		_, err := mgr.Call(scope, hook, map[string]any{"n": 1})
		assert.NoError(rt, err)
	})
}

func TestManager_ConcurrentCallsSameScope(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	require.NoError(t, mgr.LoadString("effects", "hooks.lua", `
		function sum(args) return args.a + args.b end
	`))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				ret, err := mgr.Call("effects", "sum", map[string]any{"a": 1, "b": 2})
				assert.NoError(t, err)
				assert.Equal(t, lua.LNumber(3), ret)
			}
		}()
	}
	wg.Wait()
}
