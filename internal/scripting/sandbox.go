// Package scripting provides a sandboxed GopherLua execution environment for
// content hooks: effect trigger behaviors and AI method preconditions. It has
// no dependency on game domain packages; hooks receive plain argument tables.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// hook call when no override is configured.
const DefaultInstructionLimit = 100_000

// removedGlobals are stripped from every sandbox. Loading code or touching
// the collector is never needed by a hook.
var removedGlobals = []string{"dofile", "loadfile", "load", "collectgarbage", "require"}

// removedMath are stripped from the math table. Hooks draw randomness from
// engine.dice so a seeded run replays exactly.
var removedMath = []string{"random", "randomseed"}

// opBudget is a context whose Done is polled by GopherLua once per opcode.
// It cancels itself when the budget runs out.
type opBudget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func (b *opBudget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// NewSandboxedState returns an LState with only the base, table, string and
// math libraries, minus removedGlobals and the math random functions.
//
// Postcondition: the caller owns the LState and must Close it.
func NewSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if math, ok := L.GetGlobal(lua.MathLibName).(*lua.LTable); ok {
		for _, name := range removedMath {
			math.RawSetString(name, lua.LNil)
		}
	}
	return L
}

// Limit arms L so the next execution aborts after limit opcodes. The returned
// func disarms it and must be called once the execution returns.
//
// Precondition: limit >= 0; 0 uses DefaultInstructionLimit.
func Limit(L *lua.LState, limit int) func() {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	base, cancel := context.WithCancel(context.Background())
	b := &opBudget{Context: base, cancel: cancel}
	b.left.Store(int64(limit))
	L.SetContext(b)
	return func() {
		L.RemoveContext()
		cancel()
	}
}
