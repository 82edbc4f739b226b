package combat

import (
	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

// ActionType identifies what a combatant does with its turn.
// The zero value (ActionUnknown) is intentionally invalid.
type ActionType int

const (
	ActionUnknown ActionType = iota // zero value; intentionally invalid
	ActionAttack                    // basic attack
	ActionAbility                   // use a known ability
	ActionFlee                      // player only
	ActionPass                      // forfeit the turn
	ActionToggleSustained           // free action: switch a sustained ability on or off
	ActionChangeStance              // free action: take a new stance
)

// String returns the human-readable name of the ActionType.
// Postcondition: returns one of the names ParseActionType accepts, or "unknown".
func (a ActionType) String() string {
	switch a {
	case ActionAttack:
		return "attack"
	case ActionAbility:
		return "ability"
	case ActionFlee:
		return "flee"
	case ActionPass:
		return "pass"
	case ActionToggleSustained:
		return "toggle_sustained"
	case ActionChangeStance:
		return "change_stance"
	default:
		return "unknown"
	}
}

// ParseActionType maps a name produced by String back to its ActionType.
//
// Postcondition: returns ActionUnknown for unrecognised names.
func ParseActionType(s string) ActionType {
	switch s {
	case "attack":
		return ActionAttack
	case "ability":
		return ActionAbility
	case "flee":
		return ActionFlee
	case "pass":
		return ActionPass
	case "toggle_sustained":
		return ActionToggleSustained
	case "change_stance":
		return ActionChangeStance
	default:
		return ActionUnknown
	}
}

// Action is one player command. Ability is set only for ActionAbility,
// Sustained only for ActionToggleSustained and Stance only for
// ActionChangeStance.
type Action struct {
	Type      ActionType
	Ability   ability.ID
	Sustained sustained.ID
	Stance    Stance
}

// Free reports whether a does not consume the turn.
func (a ActionType) Free() bool {
	return a == ActionToggleSustained || a == ActionChangeStance
}

// Brain chooses actions for non-player combatants.
type Brain interface {
	// Choose returns self's action for this turn. Invalid choices fall back
	// to a basic attack.
	Choose(enc *Encounter, self *Combatant) Action
}

// AttackBrain always attacks.
type AttackBrain struct{}

// Choose implements Brain.
func (AttackBrain) Choose(*Encounter, *Combatant) Action {
	return Action{Type: ActionAttack}
}
