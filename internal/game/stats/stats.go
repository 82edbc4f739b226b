// Package stats defines combatant base stats, resource pools, modifiers and
// the effective-stat fold shared by every combat engine.
package stats

import "math"

// MaxDodgeChance caps effective dodge so no combination of buffs makes a
// combatant untouchable.
const MaxDodgeChance = 0.75

// StatName names a stat an ability can scale with.
type StatName string

const (
	StatAttack     StatName = "attack"
	StatDefense    StatName = "defense"
	StatSpellPower StatName = "spell_power"
	StatMaxHealth  StatName = "max_health"
)

// Valid reports whether n names a scalable stat.
func (n StatName) Valid() bool {
	switch n {
	case StatAttack, StatDefense, StatSpellPower, StatMaxHealth:
		return true
	}
	return false
}

// Stats is a combatant's stat block. Base stats are stored on the combatant;
// effective stats are derived with Effective and never stored.
type Stats struct {
	Health      int     `yaml:"health" json:"health"`
	MaxHealth   int     `yaml:"max_health" json:"max_health"`
	Attack      int     `yaml:"attack" json:"attack"`
	Defense     int     `yaml:"defense" json:"defense"`
	SpellPower  int     `yaml:"spell_power" json:"spell_power"`
	CritChance  float64 `yaml:"crit_chance" json:"crit_chance"`
	DodgeChance float64 `yaml:"dodge_chance" json:"dodge_chance"`
}

// Value returns the stat named n, or 0 for an unknown or empty name.
func (s Stats) Value(n StatName) int {
	switch n {
	case StatAttack:
		return s.Attack
	case StatDefense:
		return s.Defense
	case StatSpellPower:
		return s.SpellPower
	case StatMaxHealth:
		return s.MaxHealth
	default:
		return 0
	}
}

// Modifiers are signed stat deltas. The zero value is "no change", so sums
// never special-case an absent field.
type Modifiers struct {
	Attack      int     `yaml:"attack" json:"attack"`
	Defense     int     `yaml:"defense" json:"defense"`
	MaxHealth   int     `yaml:"max_health" json:"max_health"`
	SpellPower  int     `yaml:"spell_power" json:"spell_power"`
	CritChance  float64 `yaml:"crit_chance" json:"crit_chance"`
	DodgeChance float64 `yaml:"dodge_chance" json:"dodge_chance"`
}

// Add returns the field-wise sum of m and o.
func (m Modifiers) Add(o Modifiers) Modifiers {
	return Modifiers{
		Attack:      m.Attack + o.Attack,
		Defense:     m.Defense + o.Defense,
		MaxHealth:   m.MaxHealth + o.MaxHealth,
		SpellPower:  m.SpellPower + o.SpellPower,
		CritChance:  m.CritChance + o.CritChance,
		DodgeChance: m.DodgeChance + o.DodgeChance,
	}
}

// IsZero reports whether every field of m is zero.
func (m Modifiers) IsZero() bool {
	return m == Modifiers{}
}

// Severest returns, per field, whichever of a and b has the larger magnitude.
// Ties keep a.
//
// Postcondition: |result.F| == max(|a.F|, |b.F|) for every field F.
func Severest(a, b Modifiers) Modifiers {
	return Modifiers{
		Attack:      severeInt(a.Attack, b.Attack),
		Defense:     severeInt(a.Defense, b.Defense),
		MaxHealth:   severeInt(a.MaxHealth, b.MaxHealth),
		SpellPower:  severeInt(a.SpellPower, b.SpellPower),
		CritChance:  severeFloat(a.CritChance, b.CritChance),
		DodgeChance: severeFloat(a.DodgeChance, b.DodgeChance),
	}
}

func severeInt(a, b int) int {
	if absInt(b) > absInt(a) {
		return b
	}
	return a
}

func severeFloat(a, b float64) float64 {
	if math.Abs(b) > math.Abs(a) {
		return b
	}
	return a
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Equipment is a worn item contributing flat stat bonuses.
type Equipment struct {
	ID    string    `yaml:"id" json:"id"`
	Name  string    `yaml:"name" json:"name"`
	Slot  string    `yaml:"slot" json:"slot"`
	Bonus Modifiers `yaml:"bonus" json:"bonus"`
}

// Effective folds base stats, equipment bonuses and summed effect modifiers
// into the stats used for resolution. It is pure.
//
// Postcondition: MaxHealth >= 1; 0 <= Health <= MaxHealth; Attack, Defense and
// SpellPower >= 0; CritChance in [0,1]; DodgeChance in [0, MaxDodgeChance].
func Effective(base Stats, equipment []Equipment, effects Modifiers) Stats {
	total := effects
	for _, e := range equipment {
		total = total.Add(e.Bonus)
	}
	out := Stats{
		MaxHealth:   max(1, base.MaxHealth+total.MaxHealth),
		Attack:      max(0, base.Attack+total.Attack),
		Defense:     max(0, base.Defense+total.Defense),
		SpellPower:  max(0, base.SpellPower+total.SpellPower),
		CritChance:  clampFloat(base.CritChance+total.CritChance, 0, 1),
		DodgeChance: clampFloat(base.DodgeChance+total.DodgeChance, 0, MaxDodgeChance),
	}
	out.Health = Clamp(base.Health, 0, out.MaxHealth)
	return out
}

// Clamp bounds v to [lo, hi].
//
// Precondition: lo <= hi.
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
