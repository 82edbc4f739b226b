package combat

import (
	"sync"

	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/hazard"
)

// Phase is a step of the encounter state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlayerTurn
	PhaseResolveAction
	PhaseEnemyTurn
	PhaseResolveEnemyAction
	PhaseEndOfTurn
	PhaseVictory
	PhaseDefeat
	PhaseFled
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlayerTurn:
		return "player_turn"
	case PhaseResolveAction:
		return "resolve_action"
	case PhaseEnemyTurn:
		return "enemy_turn"
	case PhaseResolveEnemyAction:
		return "resolve_enemy_action"
	case PhaseEndOfTurn:
		return "end_of_turn"
	case PhaseVictory:
		return "victory"
	case PhaseDefeat:
		return "defeat"
	case PhaseFled:
		return "fled"
	default:
		return "unknown"
	}
}

// Over reports whether p is terminal.
func (p Phase) Over() bool {
	return p == PhaseVictory || p == PhaseDefeat || p == PhaseFled
}

// EventKind classifies a turn event.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventAttack    EventKind = "attack"
	EventDodge     EventKind = "dodge"
	EventAbility   EventKind = "ability"
	EventHeal      EventKind = "heal"
	EventEffect    EventKind = "effect"
	EventTrigger   EventKind = "trigger"
	EventKill      EventKind = "kill"
	EventStance    EventKind = "stance"
	EventSustained EventKind = "sustained"
	EventCombo     EventKind = "combo"
	EventHazard    EventKind = "hazard"
	EventTick      EventKind = "tick"
	EventRegen     EventKind = "regen"
	EventFlee      EventKind = "flee"
	EventEnrage    EventKind = "enrage"
	EventVictory   EventKind = "victory"
	EventDefeat    EventKind = "defeat"
	EventLevelUp   EventKind = "level_up"
	EventPass      EventKind = "pass"
)

// Event is one thing that happened during resolution.
type Event struct {
	Kind      EventKind
	ActorID   string
	TargetID  string
	Amount    int
	Crit      bool
	Narrative string
}

// Rewards are granted on victory.
type Rewards struct {
	XP           int
	Gold         int
	LevelsGained int
	Narrative    string
	// Fallback is true when the narrative collaborator did not contribute.
	Fallback bool
}

// TurnReport is the result of one command.
type TurnReport struct {
	EncounterID string
	Turn        int
	Phase       Phase
	Events      []Event
	Rewards     *Rewards
}

// Encounter holds the live state of one fight. It is owned by the Engine;
// callers read it through View.
type Encounter struct {
	mu sync.Mutex

	ID         string
	Floor      int
	Phase      Phase
	Turn       int
	Player     *Combatant
	Enemy      *Combatant
	Companions []*Combatant
	Room       *hazard.Room
	Rewards    *Rewards

	// InvariantViolations counts clamps that should be unreachable.
	InvariantViolations int
	// CappedTriggers counts trigger events dropped by the cascade depth cap.
	CappedTriggers int

	guard  *effect.Guard
	report *TurnReport
}

// opponentOf returns the combatant c fights against: the enemy for the player
// and companions, the player for the enemy.
func (enc *Encounter) opponentOf(c *Combatant) *Combatant {
	if c == enc.Enemy {
		return enc.Player
	}
	return enc.Enemy
}

// participants returns every combatant still in the fight, player first.
func (enc *Encounter) participants() []*Combatant {
	out := []*Combatant{enc.Player}
	if enc.Enemy != nil && enc.Enemy.Alive() {
		out = append(out, enc.Enemy)
	}
	for _, c := range enc.Companions {
		if c.Alive() {
			out = append(out, c)
		}
	}
	return out
}

func (enc *Encounter) effectSets() []*effect.Set {
	var sets []*effect.Set
	for _, c := range enc.participants() {
		sets = append(sets, c.Effects)
	}
	return sets
}

func (enc *Encounter) emit(ev Event) {
	if enc.report != nil {
		enc.report.Events = append(enc.report.Events, ev)
	}
}

// removeDeadCompanions drops companions at zero health.
func (enc *Encounter) removeDeadCompanions() {
	kept := enc.Companions[:0]
	for _, c := range enc.Companions {
		if c.Alive() {
			kept = append(kept, c)
		}
	}
	clear(enc.Companions[len(kept):])
	enc.Companions = kept
}
