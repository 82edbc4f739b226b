package ai

import (
	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
)

// CombatantState captures a combatant's combat-relevant state at planning time.
type CombatantState struct {
	ID          string
	Name        string
	Kind        string // "player", "enemy", "boss", "companion"
	Health      int
	MaxHealth   int
	Resource    int
	MaxResource int
	Stance      string
	Effects     []string
	// Ready lists the known abilities that are affordable and off cooldown.
	Ready []ability.ID
}

// HealthPercent returns current health as a percentage of MaxHealth; 0 if
// MaxHealth == 0.
func (c *CombatantState) HealthPercent() float64 {
	if c.MaxHealth <= 0 {
		return 0
	}
	return float64(c.Health) / float64(c.MaxHealth) * 100
}

// IsReady reports whether id is in Ready.
func (c *CombatantState) IsReady(id ability.ID) bool {
	for _, r := range c.Ready {
		if r == id {
			return true
		}
	}
	return false
}

// Args converts the state into the table shape handed to Lua preconditions.
func (c *CombatantState) Args() map[string]any {
	ready := make([]string, len(c.Ready))
	for i, id := range c.Ready {
		ready[i] = string(id)
	}
	return map[string]any{
		"id":             c.ID,
		"name":           c.Name,
		"kind":           c.Kind,
		"health":         c.Health,
		"max_health":     c.MaxHealth,
		"health_percent": c.HealthPercent(),
		"resource":       c.Resource,
		"max_resource":   c.MaxResource,
		"stance":         c.Stance,
		"effects":        append([]string(nil), c.Effects...),
		"ready":          ready,
	}
}

// WorldState is the snapshot passed to the HTN planner for one enemy.
//
// Invariant: Self must not be nil.
type WorldState struct {
	Self        *CombatantState
	Opponent    *CombatantState
	Turn        int
	Floor       int
	FleeBlocked bool
}

// Args converts the world state into the single table argument of a Lua
// precondition hook.
func (ws *WorldState) Args() map[string]any {
	args := map[string]any{
		"self":         ws.Self.Args(),
		"turn":         ws.Turn,
		"floor":        ws.Floor,
		"flee_blocked": ws.FleeBlocked,
	}
	if ws.Opponent != nil {
		args["opponent"] = ws.Opponent.Args()
	}
	return args
}

// BuildWorldState constructs a WorldState snapshot of enc from self's point
// of view. reg resolves known abilities for the Ready lists; nil leaves them
// empty.
//
// Precondition: enc and self must not be nil.
// Postcondition: ws.Self.ID == self.ID.
func BuildWorldState(enc *combat.Encounter, self *combat.Combatant, reg *ability.Registry) *WorldState {
	ws := &WorldState{
		Self:  snapshot(self, reg),
		Turn:  enc.Turn,
		Floor: enc.Floor,
	}
	if enc.Room != nil {
		ws.FleeBlocked = enc.Room.FleeBlocked()
	}
	opp := enc.Player
	if self.IsPlayer() {
		opp = enc.Enemy
	}
	if opp != nil && opp != self {
		ws.Opponent = snapshot(opp, reg)
	}
	return ws
}

func snapshot(c *combat.Combatant, reg *ability.Registry) *CombatantState {
	s := &CombatantState{
		ID:          c.ID,
		Name:        c.Name,
		Kind:        string(c.Kind()),
		Health:      c.Health(),
		MaxHealth:   c.MaxHealth(),
		Resource:    c.Resource.Current,
		MaxResource: c.Resource.Max,
		Stance:      string(c.Stance),
	}
	if c.Effects != nil {
		for _, inst := range c.Effects.All() {
			s.Effects = append(s.Effects, inst.ID)
		}
	}
	if reg == nil || c.Abilities == nil {
		return s
	}
	for _, id := range c.Abilities.Known {
		def, ok := reg.Get(id)
		if !ok {
			continue
		}
		if ability.CanUse(c.Resource, c.Abilities, def) == nil {
			s.Ready = append(s.Ready, id)
		}
	}
	return s
}
