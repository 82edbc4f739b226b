package combat

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

// EffectView is the display form of one active effect.
type EffectView struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     effect.Type `json:"type"`
	Stacks   int         `json:"stacks"`
	Duration int         `json:"duration"`
}

// SustainedView is the display form of one sustained ability.
type SustainedView struct {
	ID     sustained.ID `json:"id"`
	Name   string       `json:"name"`
	Active bool         `json:"active"`
}

// CombatantView is a read-only snapshot of a combatant for display.
type CombatantView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Kind       Kind            `json:"kind"`
	Level      int             `json:"level"`
	Health     int             `json:"health"`
	MaxHealth  int             `json:"max_health"`
	Resource   int             `json:"resource"`
	MaxRes     int             `json:"max_resource"`
	ResType    string          `json:"resource_type"`
	Stance     Stance          `json:"stance"`
	Combo      string          `json:"combo,omitempty"`
	ComboStack int             `json:"combo_stacks,omitempty"`
	Effects    []EffectView    `json:"effects,omitempty"`
	Sustained  []SustainedView `json:"sustained,omitempty"`
}

// Choice is one command the player can issue. A disabled choice carries the
// reason it cannot be taken now.
type Choice struct {
	Action    ActionType   `json:"action"`
	Ability   ability.ID   `json:"ability,omitempty"`
	Sustained sustained.ID `json:"sustained,omitempty"`
	Stance    Stance       `json:"stance,omitempty"`
	Label     string       `json:"label"`
	Disabled  bool         `json:"disabled"`
	Reason    string       `json:"reason,omitempty"`
}

// View is what a presentation layer renders for an encounter.
type View struct {
	EncounterID string          `json:"encounter_id"`
	Phase       Phase           `json:"phase"`
	Turn        int             `json:"turn"`
	Player      CombatantView   `json:"player"`
	Enemy       *CombatantView  `json:"enemy,omitempty"`
	Companions  []CombatantView `json:"companions,omitempty"`
	Hazards     []string        `json:"hazards,omitempty"`
	FleeChance  float64         `json:"flee_chance"`
	FleeBlocked bool            `json:"flee_blocked"`
	Choices     []Choice        `json:"choices"`
}

// View returns a snapshot of encounter id with the player's available
// choices.
func (e *Engine) View(id string) (View, error) {
	enc, ok := e.Get(id)
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrEncounterNotFound, id)
	}
	enc.mu.Lock()
	defer enc.mu.Unlock()

	v := View{
		EncounterID: enc.ID,
		Phase:       enc.Phase,
		Turn:        enc.Turn,
		Player:      viewOf(enc.Player),
		FleeChance:  FleeChance(e.rules, enc.Player.Level),
		FleeBlocked: enc.Room.FleeBlocked(),
	}
	if enc.Enemy != nil {
		ev := viewOf(enc.Enemy)
		v.Enemy = &ev
	}
	for _, c := range enc.Companions {
		v.Companions = append(v.Companions, viewOf(c))
	}
	if enc.Room != nil {
		for _, a := range enc.Room.Hazards {
			v.Hazards = append(v.Hazards, a.Def.Name)
		}
	}
	v.Choices = e.choices(enc, v.FleeBlocked)
	return v, nil
}

func viewOf(c *Combatant) CombatantView {
	v := CombatantView{
		ID:         c.ID,
		Name:       c.Name,
		Kind:       c.Kind(),
		Level:      c.Level,
		Health:     c.Health(),
		MaxHealth:  c.MaxHealth(),
		Resource:   c.Resource.Current,
		MaxRes:     c.Resource.Max,
		ResType:    string(c.Resource.Type),
		Stance:     c.Stance,
		Combo:      string(c.Combo.Active),
		ComboStack: c.Combo.Stacks,
	}
	for _, inst := range c.Effects.All() {
		v.Effects = append(v.Effects, EffectView{
			ID:       inst.ID,
			Name:     inst.Name,
			Type:     inst.Type,
			Stacks:   inst.Stacks,
			Duration: inst.Duration,
		})
	}
	for _, s := range c.Sustained {
		v.Sustained = append(v.Sustained, SustainedView{ID: s.Def.ID, Name: s.Def.Name, Active: s.Active})
	}
	return v
}

func (e *Engine) choices(enc *Encounter, fleeBlocked bool) []Choice {
	p := enc.Player
	closed := ""
	if enc.Phase != PhasePlayerTurn {
		closed = fmt.Sprintf("encounter is in %s", enc.Phase)
	}
	out := []Choice{{Action: ActionAttack, Label: "Attack"}}
	for _, id := range p.Abilities.Known {
		ch := Choice{Action: ActionAbility, Ability: id, Label: string(id)}
		def, err := e.abilities.Check(p.caster(), id)
		if def != nil {
			ch.Label = def.Name
		} else if d, ok := e.abilities.Registry().Get(id); ok {
			ch.Label = d.Name
		}
		if err != nil {
			ch.Disabled, ch.Reason = true, err.Error()
		}
		out = append(out, ch)
	}
	for _, inst := range p.Sustained {
		ch := Choice{Action: ActionToggleSustained, Sustained: inst.Def.ID, Label: inst.Def.Name}
		if inst.Active {
			ch.Label = "Stop " + inst.Def.Name
		} else if err := sustained.CanActivate(inst, p.pools(), p.Sustained); err != nil {
			ch.Disabled, ch.Reason = true, err.Error()
		}
		out = append(out, ch)
	}
	for _, s := range []Stance{Balanced, Aggressive, Defensive} {
		if s != p.Stance {
			out = append(out, Choice{Action: ActionChangeStance, Stance: s, Label: stanceLabel(s)})
		}
	}
	flee := Choice{Action: ActionFlee, Label: "Flee"}
	if fleeBlocked {
		flee.Disabled, flee.Reason = true, "a hazard blocks escape"
	}
	out = append(out, flee, Choice{Action: ActionPass, Label: "Wait"})

	if closed != "" {
		for i := range out {
			out[i].Disabled, out[i].Reason = true, closed
		}
	}
	return out
}

func stanceLabel(s Stance) string {
	name := string(s)
	return strings.ToUpper(name[:1]) + name[1:] + " stance"
}
