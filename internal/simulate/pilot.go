// Package simulate drives the player side of encounters automatically and
// runs a character down through dungeon floors.
package simulate

import (
	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

// Decision is what the pilot wants this turn: optional free actions followed
// by the turn-consuming action.
type Decision struct {
	Stance  combat.Stance // empty = keep the current stance
	Toggle  sustained.ID  // empty = no sustained toggle
	Action  combat.Action
	Because string
}

// Pilot picks player actions from an encounter view.
//
// Thresholds are fractions of max health.
type Pilot struct {
	abilities *ability.Registry
	// HealBelow triggers a self-targeted ability when one is ready.
	HealBelow float64
	// FleeBelow triggers a flee attempt when escape is possible.
	FleeBelow float64
	// GuardBelow switches to the defensive stance.
	GuardBelow float64
}

// NewPilot returns a Pilot with default thresholds.
//
// Precondition: abilities must be non-nil.
func NewPilot(abilities *ability.Registry) *Pilot {
	if abilities == nil {
		panic("simulate.NewPilot: abilities must not be nil")
	}
	return &Pilot{abilities: abilities, HealBelow: 0.4, FleeBelow: 0.15, GuardBelow: 0.3}
}

// Decide chooses the next move for the player in v.
//
// Postcondition: Action is attack, ability, flee or pass; an ability action
// names an enabled choice in v.
func (p *Pilot) Decide(v combat.View) Decision {
	var d Decision
	hp := fraction(v.Player.Health, v.Player.MaxHealth)

	switch {
	case hp < p.GuardBelow && offered(v, combat.Defensive):
		d.Stance = combat.Defensive
	case hp >= p.GuardBelow && v.Enemy != nil && fraction(v.Enemy.Health, v.Enemy.MaxHealth) < 0.5 &&
		offered(v, combat.Aggressive):
		d.Stance = combat.Aggressive
	}

	for _, ch := range v.Choices {
		if ch.Action == combat.ActionToggleSustained && !ch.Disabled && !activeSustained(v.Player, ch.Sustained) {
			d.Toggle = ch.Sustained
			break
		}
	}

	if hp < p.HealBelow {
		if id, ok := p.firstReady(v, ability.TargetSelf); ok {
			d.Action = combat.Action{Type: combat.ActionAbility, Ability: id}
			d.Because = "heal"
			return d
		}
	}
	if hp < p.FleeBelow && !v.FleeBlocked && v.FleeChance > 0 {
		d.Action = combat.Action{Type: combat.ActionFlee}
		d.Because = "escape"
		return d
	}
	if id, ok := p.firstReady(v, ability.TargetEnemy); ok {
		d.Action = combat.Action{Type: combat.ActionAbility, Ability: id}
		d.Because = "offense"
		return d
	}
	d.Action = combat.Action{Type: combat.ActionAttack}
	d.Because = "fallback"
	return d
}

// firstReady returns the first enabled ability choice aimed at target.
func (p *Pilot) firstReady(v combat.View, target ability.Target) (ability.ID, bool) {
	for _, ch := range v.Choices {
		if ch.Action != combat.ActionAbility || ch.Disabled {
			continue
		}
		def, ok := p.abilities.Get(ch.Ability)
		if !ok || def.Target != target {
			continue
		}
		return ch.Ability, true
	}
	return "", false
}

// offered reports whether v lets the player switch to stance s right now.
func offered(v combat.View, s combat.Stance) bool {
	for _, ch := range v.Choices {
		if ch.Action == combat.ActionChangeStance && ch.Stance == s && !ch.Disabled {
			return true
		}
	}
	return false
}

func activeSustained(c combat.CombatantView, id sustained.ID) bool {
	for _, s := range c.Sustained {
		if s.ID == id {
			return s.Active
		}
	}
	return false
}

func fraction(cur, maxv int) float64 {
	if maxv <= 0 {
		return 0
	}
	return float64(cur) / float64(maxv)
}
