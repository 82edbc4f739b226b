package scripting

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/dice"
)

// Manager owns one sandboxed LState per scope and exposes hook dispatch.
// Scopes separate script families, e.g. "effects" for trigger behaviors and
// "ai" for planner preconditions.
//
// Manager is safe for concurrent Call. Each scope's LState is
// single-threaded; its mutex serializes calls into the same scope while
// different scopes run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	limit  int
	roller *dice.Roller
	logger *zap.Logger
}

type vm struct {
	mu sync.Mutex
	L  *lua.LState
}

// NewManager creates a Manager. limit bounds the opcodes of each hook call;
// 0 uses DefaultInstructionLimit.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no scopes.
func NewManager(roller *dice.Roller, logger *zap.Logger, limit int) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[string]*vm),
		limit:  limit,
		roller: roller,
		logger: logger,
	}
}

// LoadFS creates a sandboxed VM for scope, registers the engine.* modules,
// then executes every *.lua file under dir in fsys in lexicographic order.
// Loading a scope again replaces its VM.
//
// Precondition: scope must be non-empty.
// Postcondition: on error the previous VM for scope, if any, is kept.
func (m *Manager) LoadFS(scope string, fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", dir, scope, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	srcs := make(map[string]string, len(files))
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return fmt.Errorf("scripting: reading %q for %q: %w", f, scope, err)
		}
		srcs[f] = string(data)
	}
	return m.load(scope, files, srcs)
}

// LoadDirectory is LoadFS over an on-disk directory.
func (m *Manager) LoadDirectory(scope, dir string) error {
	return m.LoadFS(scope, os.DirFS(dir), ".")
}

// LoadString creates scope's VM from a single chunk of source.
func (m *Manager) LoadString(scope, name, src string) error {
	return m.load(scope, []string{name}, map[string]string{name: src})
}

func (m *Manager) load(scope string, order []string, srcs map[string]string) error {
	L := NewSandboxedState()
	m.RegisterModules(L)
	for _, name := range order {
		disarm := Limit(L, m.limit)
		err := L.DoString(srcs[name])
		disarm()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", name, scope, err)
		}
	}

	m.mu.Lock()
	old := m.vms[scope]
	m.vms[scope] = &vm{L: L}
	m.mu.Unlock()
	if old != nil {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.logger.Debug("scripts loaded", zap.String("scope", scope), zap.Int("files", len(order)))
	return nil
}

// Call invokes the Lua global function hook in scope's VM with one argument:
// a table built from args. It returns (LNil, nil) if the scope or hook does
// not exist. Lua runtime errors, including exceeding the instruction limit,
// are logged at Warn level and returned.
//
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) Call(scope, hook string, args map[string]any) (lua.LValue, error) {
	m.mu.RLock()
	v, ok := m.vms[scope]
	m.mu.RUnlock()
	if !ok {
		m.logger.Info("scripting: no VM for scope",
			zap.String("scope", scope),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	L := v.L
	fn := L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, nil
	}

	disarm := Limit(L, m.limit)
	err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, ToLua(L, args))
	disarm()
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("scope", scope),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, fmt.Errorf("scripting: %s/%s: %w", scope, hook, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// Scopes returns the loaded scope names, sorted.
func (m *Manager) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vms))
	for s := range m.vms {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close releases every VM. Calls after Close find no scopes.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()
	for _, v := range vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
	}
}

// ToLua converts a Go value into a Lua value. Maps become tables keyed by
// string, slices become arrays; unsupported types become nil.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []string:
		t := L.NewTable()
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, e := range x {
			t.Append(ToLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range x {
			t.RawSetString(k, ToLua(L, e))
		}
		return t
	default:
		return lua.LNil
	}
}
