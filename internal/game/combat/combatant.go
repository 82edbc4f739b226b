// Package combat runs encounters: one player against one enemy or boss,
// with optional companions, resolved turn by turn through a fixed phase
// machine that composes the effect, ability, sustained, combo and hazard
// engines.
package combat

import (
	"fmt"
	"slices"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

// Kind names a combatant role.
type Kind string

const (
	KindPlayer    Kind = "player"
	KindEnemy     Kind = "enemy"
	KindBoss      Kind = "boss"
	KindCompanion Kind = "companion"
)

// Role is the closed set of combatant variants: *Player, *Enemy, *Boss and
// *Companion. Code branching on a role uses a type switch over exactly these.
type Role interface {
	Kind() Kind
	sealed()
}

// Growth is what a player gains per level.
type Growth struct {
	MaxHealth  int `yaml:"max_health" json:"max_health"`
	Attack     int `yaml:"attack" json:"attack"`
	Defense    int `yaml:"defense" json:"defense"`
	SpellPower int `yaml:"spell_power" json:"spell_power"`
	Resource   int `yaml:"resource" json:"resource"`
}

// Player is the persistent hero.
type Player struct {
	XP     int    `json:"xp"`
	Gold   int    `json:"gold"`
	Growth Growth `json:"growth"`
}

// Enemy is a generated opponent, discarded when the encounter ends.
type Enemy struct {
	Floor      int    `json:"floor"`
	Theme      string `json:"theme"`
	TemplateID string `json:"template_id"`
	AIDomain   string `json:"ai_domain,omitempty"`
}

// Boss is an enemy that enrages once when its health falls below
// EnrageBelow × max health.
type Boss struct {
	Enemy
	EnrageBelow  float64 `json:"enrage_below"`
	EnrageEffect string  `json:"enrage_effect"`
	Enraged      bool    `json:"enraged"`
}

// Companion fights beside its owner.
type Companion struct {
	OwnerID string `json:"owner_id"`
}

func (*Player) Kind() Kind    { return KindPlayer }
func (*Enemy) Kind() Kind     { return KindEnemy }
func (*Boss) Kind() Kind      { return KindBoss }
func (*Companion) Kind() Kind { return KindCompanion }

func (*Player) sealed()    {}
func (*Enemy) sealed()     {}
func (*Boss) sealed()      {}
func (*Companion) sealed() {}

// Stance is a persistent combat posture.
type Stance string

const (
	Balanced   Stance = "balanced"
	Aggressive Stance = "aggressive"
	Defensive  Stance = "defensive"
)

// Valid reports whether s is a known stance.
func (s Stance) Valid() bool {
	return s == Balanced || s == Aggressive || s == Defensive
}

// DamageModifier returns the flat change to base damage dealt in stance s:
// +30% aggressive, -30% defensive, floored.
func (s Stance) DamageModifier(base int) int {
	switch s {
	case Aggressive:
		return base * 3 / 10
	case Defensive:
		return -(base * 3 / 10)
	default:
		return 0
	}
}

// Defense returns defense adjusted for stance s: x1.4 defensive, x0.7
// aggressive, floored.
func (s Stance) Defense(def int) int {
	switch s {
	case Defensive:
		return def * 14 / 10
	case Aggressive:
		return def * 7 / 10
	default:
		return def
	}
}

// Combatant is one participant in an encounter.
//
// Invariant: 0 <= Base.Health <= Effective().MaxHealth;
// 0 <= Resource.Current <= Resource.Max; every cooldown >= 0.
type Combatant struct {
	ID           string
	Name         string
	Role         Role
	Level        int
	ClassID      string
	Tags         []string
	Base         stats.Stats
	Equipment    []stats.Equipment
	Resource     stats.Resource
	RegenPerTurn int
	Effects      *effect.Set
	Abilities    *ability.Book
	Sustained    []*sustained.Instance
	Combo        combo.State
	Stance       Stance
}

// Kind returns the combatant's role kind.
//
// Precondition: c.Role must be non-nil.
func (c *Combatant) Kind() Kind { return c.Role.Kind() }

// IsPlayer reports whether c is the player.
func (c *Combatant) IsPlayer() bool {
	_, ok := c.Role.(*Player)
	return ok
}

// PlayerRole returns the player role, or nil for any other variant.
func (c *Combatant) PlayerRole() *Player {
	p, _ := c.Role.(*Player)
	return p
}

// Floor returns the dungeon floor an enemy or boss was generated for; 1 for
// other roles.
func (c *Combatant) Floor() int {
	switch r := c.Role.(type) {
	case *Enemy:
		return max(1, r.Floor)
	case *Boss:
		return max(1, r.Floor)
	case *Player, *Companion:
		return 1
	default:
		panic(fmt.Sprintf("combat: unhandled role %T", r))
	}
}

// Effective returns stats after equipment and active effects.
func (c *Combatant) Effective() stats.Stats {
	return stats.Effective(c.Base, c.Equipment, c.Effects.Modifiers())
}

// Health returns current health.
func (c *Combatant) Health() int { return c.Base.Health }

// MaxHealth returns effective max health.
func (c *Combatant) MaxHealth() int { return c.Effective().MaxHealth }

// Alive reports whether health is above zero.
func (c *Combatant) Alive() bool { return c.Base.Health > 0 }

// HasTag reports whether c carries tag.
func (c *Combatant) HasTag(tag string) bool { return slices.Contains(c.Tags, tag) }

// takeDamage removes up to n health and returns the amount removed.
//
// Postcondition: 0 <= Base.Health.
func (c *Combatant) takeDamage(n int) int {
	if n <= 0 {
		return 0
	}
	before := c.Base.Health
	c.Base.Health = max(0, c.Base.Health-n)
	return before - c.Base.Health
}

// heal restores up to n health, clamped to effective max, and returns the
// amount restored. The dead are not healed.
//
// Postcondition: Base.Health <= MaxHealth().
func (c *Combatant) heal(n int) int {
	if n <= 0 || !c.Alive() {
		return 0
	}
	before := c.Base.Health
	c.Base.Health = stats.Clamp(c.Base.Health+n, 0, c.MaxHealth())
	return c.Base.Health - before
}

func (c *Combatant) caster() ability.Caster {
	return ability.Caster{Name: c.Name, Resource: &c.Resource, Book: c.Abilities, Stats: c.Effective()}
}

func (c *Combatant) pools() sustained.Pools {
	return sustained.Pools{Resource: c.Resource, Health: c.Base.Health, MaxHealth: c.MaxHealth()}
}

func (c *Combatant) setPools(p sustained.Pools) {
	c.Resource = p.Resource
	c.Base.Health = p.Health
}

// ResetForEncounter prepares a persisting combatant for a new encounter by
// dropping any combo chain. Effects, cooldowns and the chosen stance persist;
// a combatant with no stance yet starts balanced.
func (c *Combatant) ResetForEncounter() {
	if c.Effects == nil {
		c.Effects = effect.NewSet()
	}
	if c.Abilities == nil {
		c.Abilities = ability.NewBook()
	}
	if !c.Stance.Valid() {
		c.Stance = Balanced
	}
	c.Combo.Reset()
}
