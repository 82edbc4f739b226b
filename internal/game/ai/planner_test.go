package ai_test

import (
	"errors"
	"testing"

	"github.com/cory-johannsen/delve/internal/game/ai"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"
)

// mockScriptCaller returns the given value for any hook call and records
// the hooks it saw.
type mockScriptCaller struct {
	returnVal lua.LValue
	err       error
	hooks     []string
	lastArgs  map[string]any
}

func (m *mockScriptCaller) Call(scope, hook string, args map[string]any) (lua.LValue, error) {
	m.hooks = append(m.hooks, hook)
	m.lastArgs = args
	if m.err != nil {
		return lua.LNil, m.err
	}
	if m.returnVal == nil {
		return lua.LNil, nil
	}
	return m.returnVal, nil
}

func goblinDomain() *ai.Domain {
	return &ai.Domain{
		ID: "goblin_combat",
		Tasks: []*ai.Task{
			{ID: "behave"},
			{ID: "fight"},
		},
		Methods: []*ai.Method{
			{TaskID: "behave", ID: "combat_mode", Precondition: "opponent_standing", Subtasks: []string{"fight"}},
			{TaskID: "behave", ID: "idle_mode", Precondition: "", Subtasks: []string{"do_pass"}},
			{TaskID: "fight", ID: "cast_first", Precondition: "", Subtasks: []string{"cast_fireball", "strike"}},
		},
		Operators: []*ai.Operator{
			{ID: "cast_fireball", Action: "ability", Ability: "fireball"},
			{ID: "strike", Action: "attack"},
			{ID: "do_pass", Action: "pass"},
		},
	}
}

func goblinState() *ai.WorldState {
	return &ai.WorldState{
		Self:     &ai.CombatantState{ID: "e1", Kind: "enemy", Name: "Goblin", Health: 30, MaxHealth: 60},
		Opponent: &ai.CombatantState{ID: "p1", Kind: "player", Name: "Aria", Health: 100, MaxHealth: 100},
		Turn:     2,
		Floor:    3,
	}
}

func TestPlanner_Plan_DecomposesWhenPreconditionTrue(t *testing.T) {
	caller := &mockScriptCaller{returnVal: lua.LTrue}
	planner := ai.NewPlanner(goblinDomain(), caller, "ai")

	actions, err := planner.Plan(goblinState())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 planned actions, got %v", actions)
	}
	if actions[0].Action != "ability" || actions[0].Ability != "fireball" {
		t.Fatalf("expected fireball first, got %+v", actions[0])
	}
	if actions[1].Action != "attack" || actions[1].OperatorID != "strike" {
		t.Fatalf("expected strike second, got %+v", actions[1])
	}
}

func TestPlanner_Plan_PassesWorldStateToPreconditions(t *testing.T) {
	caller := &mockScriptCaller{returnVal: lua.LTrue}
	planner := ai.NewPlanner(goblinDomain(), caller, "ai")
	if _, err := planner.Plan(goblinState()); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(caller.hooks) != 1 || caller.hooks[0] != "opponent_standing" {
		t.Fatalf("expected one precondition call, got %v", caller.hooks)
	}
	self, ok := caller.lastArgs["self"].(map[string]any)
	if !ok {
		t.Fatalf("expected self table, got %T", caller.lastArgs["self"])
	}
	if self["health_percent"] != 50.0 {
		t.Fatalf("expected health_percent 50, got %v", self["health_percent"])
	}
	if caller.lastArgs["floor"] != 3 {
		t.Fatalf("expected floor 3, got %v", caller.lastArgs["floor"])
	}
}

func TestPlanner_Plan_FallsBackToPassWhenPreconditionFalse(t *testing.T) {
	caller := &mockScriptCaller{returnVal: lua.LFalse}
	planner := ai.NewPlanner(goblinDomain(), caller, "ai")

	actions, err := planner.Plan(goblinState())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 1 || actions[0].Action != "pass" {
		t.Fatalf("expected pass fallback, got %v", actions)
	}
}

func TestPlanner_Plan_ScriptErrorIsFalse(t *testing.T) {
	caller := &mockScriptCaller{err: errors.New("boom")}
	planner := ai.NewPlanner(goblinDomain(), caller, "ai")

	actions, err := planner.Plan(goblinState())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 1 || actions[0].Action != "pass" {
		t.Fatalf("expected pass fallback, got %v", actions)
	}
}

func TestPlanner_Plan_EmptyDomainReturnsEmpty(t *testing.T) {
	domain := &ai.Domain{
		ID:    "empty",
		Tasks: []*ai.Task{{ID: "behave"}},
	}
	planner := ai.NewPlanner(domain, &mockScriptCaller{}, "ai")
	actions, err := planner.Plan(goblinState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actions == nil || len(actions) != 0 {
		t.Fatalf("expected empty non-nil plan, got %v", actions)
	}
}

func TestPlanner_Plan_RejectsNilState(t *testing.T) {
	planner := ai.NewPlanner(goblinDomain(), &mockScriptCaller{}, "ai")
	if _, err := planner.Plan(nil); err == nil {
		t.Fatal("expected error for nil state")
	}
	if _, err := planner.Plan(&ai.WorldState{}); err == nil {
		t.Fatal("expected error for nil Self")
	}
}

func TestPlanner_Plan_RecursiveDomainTerminates(t *testing.T) {
	domain := &ai.Domain{
		ID:      "loop",
		Tasks:   []*ai.Task{{ID: "behave"}},
		Methods: []*ai.Method{{TaskID: "behave", ID: "again", Subtasks: []string{"behave"}}},
	}
	planner := ai.NewPlanner(domain, &mockScriptCaller{}, "ai")
	actions, err := planner.Plan(goblinState())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("expected no actions, got %v", actions)
	}
}

func TestNewPlanner_PanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	ai.NewPlanner(nil, &mockScriptCaller{}, "ai")
}

func TestProperty_Planner_NeverReturnsNilSlice(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		returnTrue := rapid.Bool().Draw(rt, "precond")
		var lv lua.LValue = lua.LFalse
		if returnTrue {
			lv = lua.LTrue
		}
		planner := ai.NewPlanner(goblinDomain(), &mockScriptCaller{returnVal: lv}, "ai")
		ws := goblinState()
		ws.Self.Health = rapid.IntRange(0, 60).Draw(rt, "health")
		actions, err := planner.Plan(ws)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if actions == nil {
			rt.Fatal("Plan must return non-nil slice")
		}
	})
}
