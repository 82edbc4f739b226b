package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua tables into L:
//
//	engine.log.debug/info/warn/error(msg)
//	engine.dice.roll(expr) -> total, or nil and an error message
//	engine.dice.chance(p) -> bool
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "dice", m.diceModule(L))
	L.SetGlobal("engine", engine)
}

func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	levels := map[string]func(string, ...zap.Field){
		"debug": m.logger.Debug,
		"info":  m.logger.Info,
		"warn":  m.logger.Warn,
		"error": m.logger.Error,
	}
	for name, fn := range levels {
		L.SetField(mod, name, L.NewFunction(func(L *lua.LState) int {
			fn("lua", zap.String("msg", L.CheckString(1)))
			return 0
		}))
	}
	return mod
}

func (m *Manager) diceModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "roll", L.NewFunction(func(L *lua.LState) int {
		res, err := m.roller.RollExpr(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LNumber(res.Total()))
		return 1
	}))
	L.SetField(mod, "chance", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(m.roller.Chance("lua", float64(L.CheckNumber(1)))))
		return 1
	}))
	return mod
}
