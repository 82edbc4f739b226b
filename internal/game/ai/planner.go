package ai

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// RootTask is the task every domain decomposes first.
const RootTask = "behave"

// maxDepth guards against domains whose methods recurse forever.
const maxDepth = 32

// ScriptCaller is the interface required by the Planner to evaluate Lua
// preconditions. *scripting.Manager satisfies it.
type ScriptCaller interface {
	// Call invokes a named Lua function in scope with args as its single
	// table argument. Returns (LNil, nil) if the function is not defined.
	Call(scope, hook string, args map[string]any) (lua.LValue, error)
}

// PlannedAction is one primitive action produced by the planner.
type PlannedAction struct {
	OperatorID string
	Action     string // "attack", "ability", "pass"
	Ability    string // set for "ability"
}

// Planner evaluates an HTN domain for one enemy and produces an ordered
// action plan for the current turn.
//
// Invariant: domain and caller must not be nil.
type Planner struct {
	domain *Domain
	caller ScriptCaller
	scope  string
}

// NewPlanner constructs a Planner whose preconditions run in scope.
//
// Precondition: domain and caller must not be nil.
func NewPlanner(domain *Domain, caller ScriptCaller, scope string) *Planner {
	if domain == nil {
		panic("ai.NewPlanner: domain must not be nil")
	}
	if caller == nil {
		panic("ai.NewPlanner: caller must not be nil")
	}
	return &Planner{domain: domain, caller: caller, scope: scope}
}

// Domain returns the planner's domain.
func (p *Planner) Domain() *Domain { return p.domain }

// Plan evaluates the HTN domain against state and returns an ordered plan.
//
// Precondition: state and state.Self must not be nil.
// Postcondition: returns non-nil slice (may be empty); never returns error for Lua failures
// (they are treated as precondition-false).
func (p *Planner) Plan(state *WorldState) ([]PlannedAction, error) {
	if state == nil || state.Self == nil {
		return nil, fmt.Errorf("ai.Planner.Plan: state and state.Self must not be nil")
	}

	taskQueue := []string{RootTask}
	var result []PlannedAction
	var args map[string]any
	steps := 0

	for len(taskQueue) > 0 && steps < maxDepth {
		steps++
		current := taskQueue[0]
		taskQueue = taskQueue[1:]

		if op, ok := p.domain.OperatorByID(current); ok {
			result = append(result, PlannedAction{OperatorID: op.ID, Action: op.Action, Ability: op.Ability})
			continue
		}

		if args == nil {
			args = state.Args()
		}
		method := p.findApplicableMethod(current, args)
		if method == nil {
			continue
		}

		// Prepend subtasks (preserves ordered decomposition).
		next := make([]string, 0, len(method.Subtasks)+len(taskQueue))
		next = append(next, method.Subtasks...)
		taskQueue = append(next, taskQueue...)
	}

	if result == nil {
		result = []PlannedAction{}
	}
	return result, nil
}

// findApplicableMethod returns the first Method for taskID whose precondition passes,
// or nil if none applies.
//
// Methods are tried in declaration order. An empty Precondition always passes.
func (p *Planner) findApplicableMethod(taskID string, args map[string]any) *Method {
	for _, m := range p.domain.MethodsForTask(taskID) {
		if m.Precondition == "" {
			return m
		}
		val, err := p.caller.Call(p.scope, m.Precondition, args)
		if err == nil && val == lua.LTrue {
			return m
		}
	}
	return nil
}
