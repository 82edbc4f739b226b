package effect

import (
	"github.com/google/uuid"

	"github.com/cory-johannsen/delve/internal/game/stats"
)

// SourceType says what put an effect on a combatant.
type SourceType string

const (
	SourceAbility     SourceType = "ability"
	SourceHazard      SourceType = "hazard"
	SourceEnvironment SourceType = "environment"
	SourceInnate      SourceType = "innate"
	SourceSustained   SourceType = "sustained"
)

// Source attributes an instance to the thing that applied it, so removal can
// be scoped to exactly that origin.
type Source struct {
	Type SourceType `json:"type"`
	ID   string     `json:"id"`
}

// Instance is one effect applied to one combatant. It carries a copy of its
// definition's numbers so a live instance never changes when content reloads.
//
// Invariant: 1 <= Stacks <= max(1, MaxStacks); Duration == -1 or Duration >= 1
// while the instance is in a Set.
type Instance struct {
	InstanceID string          `json:"instance_id"`
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       Type            `json:"type"`
	Duration   int             `json:"duration"`
	Modifiers  stats.Modifiers `json:"modifiers"`
	Tick       TickEffect      `json:"tick"`
	Stacking   Stacking        `json:"stacking"`
	Stacks     int             `json:"stacks"`
	MaxStacks  int             `json:"max_stacks"`
	Source     Source          `json:"source"`
	Triggers   []TriggerDef    `json:"triggers,omitempty"`
}

// NewInstance copies def into a new single-stack instance attributed to src.
//
// Precondition: def is non-nil.
// Postcondition: InstanceID is a fresh UUID; Stacks == 1.
func NewInstance(def *Def, src Source) *Instance {
	var triggers []TriggerDef
	if len(def.Triggers) > 0 {
		triggers = append(triggers, def.Triggers...)
	}
	return &Instance{
		InstanceID: uuid.NewString(),
		ID:         def.ID,
		Name:       def.Name,
		Type:       def.Type,
		Duration:   def.Duration,
		Modifiers:  def.Modifiers,
		Tick:       def.Tick,
		Stacking:   def.Stacking,
		Stacks:     1,
		MaxStacks:  def.MaxStacks,
		Source:     src,
		Triggers:   triggers,
	}
}

// Permanent reports whether the instance never ticks down.
func (i *Instance) Permanent() bool { return i.Duration == Permanent }

// stackCap treats an unset cap as a single stack.
func (i *Instance) stackCap() int {
	if i.MaxStacks < 1 {
		return 1
	}
	return i.MaxStacks
}
