// Package npc provides enemy template definitions and floor-scaled spawning.
package npc

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
)

// Scaling is the per-floor growth applied above floor 1.
type Scaling struct {
	Health     int `yaml:"health"`
	Attack     int `yaml:"attack"`
	Defense    int `yaml:"defense"`
	SpellPower int `yaml:"spell_power"`
	Resource   int `yaml:"resource"`
}

// Boss marks a template as a boss and describes its enrage.
type Boss struct {
	// EnrageBelow is the health fraction under which the boss enrages once.
	EnrageBelow  float64 `yaml:"enrage_below"`
	EnrageEffect string  `yaml:"enrage_effect"`
}

// Template defines a reusable enemy archetype loaded from YAML.
type Template struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Themes      []string `yaml:"themes"` // empty = every theme
	Tags        []string `yaml:"tags"`
	MinFloor    int      `yaml:"min_floor"`
	MaxFloor    int      `yaml:"max_floor"` // 0 = no upper bound
	// Weight biases random selection; 0 counts as 1.
	Weight       int                `yaml:"weight"`
	Level        int                `yaml:"level"`
	Health       int                `yaml:"health"`
	Attack       int                `yaml:"attack"`
	Defense      int                `yaml:"defense"`
	SpellPower   int                `yaml:"spell_power"`
	CritChance   float64            `yaml:"crit_chance"`
	DodgeChance  float64            `yaml:"dodge_chance"`
	ResourceType stats.ResourceType `yaml:"resource_type"`
	Resource     int                `yaml:"resource"`
	RegenPerTurn int                `yaml:"regen_per_turn"`
	PerFloor     Scaling            `yaml:"per_floor"`
	Abilities    []ability.ID       `yaml:"abilities"`
	// Effects are applied for the whole life of the spawned enemy.
	Effects  []string `yaml:"effects"`
	AIDomain string   `yaml:"ai_domain"` // HTN domain ID; empty = simple attack fallback
	Boss     *Boss    `yaml:"boss"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Level >= 1,
// Health >= 1, Attack and Defense >= 0, chances in [0, 1], the floor range is
// consistent, and a resource pool has a valid type; returns an error on the
// first violation otherwise.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("npc template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("npc template %q: name must not be empty", t.ID)
	}
	if t.Level < 1 {
		return fmt.Errorf("npc template %q: level must be >= 1", t.ID)
	}
	if t.Health < 1 {
		return fmt.Errorf("npc template %q: health must be >= 1", t.ID)
	}
	if t.Attack < 0 || t.Defense < 0 || t.SpellPower < 0 {
		return fmt.Errorf("npc template %q: attack, defense and spell_power must be >= 0", t.ID)
	}
	if t.CritChance < 0 || t.CritChance > 1 || t.DodgeChance < 0 || t.DodgeChance > 1 {
		return fmt.Errorf("npc template %q: crit_chance and dodge_chance must be in [0, 1]", t.ID)
	}
	if t.MinFloor < 0 || (t.MaxFloor > 0 && t.MaxFloor < t.MinFloor) {
		return fmt.Errorf("npc template %q: floor range [%d, %d] is invalid", t.ID, t.MinFloor, t.MaxFloor)
	}
	if t.Resource > 0 && !t.ResourceType.Valid() {
		return fmt.Errorf("npc template %q: resource_type %q is not valid", t.ID, t.ResourceType)
	}
	if t.Boss != nil {
		if t.Boss.EnrageBelow < 0 || t.Boss.EnrageBelow >= 1 {
			return fmt.Errorf("npc template %q: boss enrage_below must be in [0, 1)", t.ID)
		}
	}
	return nil
}

// IsBoss reports whether the template spawns a boss.
func (t *Template) IsBoss() bool { return t.Boss != nil }

// Fits reports whether the template may appear on floor in theme.
func (t *Template) Fits(floor int, theme string) bool {
	if floor < t.MinFloor || (t.MaxFloor > 0 && floor > t.MaxFloor) {
		return false
	}
	if len(t.Themes) == 0 || theme == "" {
		return true
	}
	for _, th := range t.Themes {
		if th == theme {
			return true
		}
	}
	return false
}

// Spawn creates a combatant from the template scaled to floor. Floors below
// 1 count as 1. Innate effects are resolved against effects; nil skips them.
//
// Postcondition: the combatant is alive at full health and resource with a
// fresh ID; its role is *combat.Boss when IsBoss, *combat.Enemy otherwise.
func (t *Template) Spawn(floor int, theme string, effects *effect.Registry) (*combat.Combatant, error) {
	floor = max(1, floor)
	above := floor - 1

	health := t.Health + t.PerFloor.Health*above
	c := &combat.Combatant{
		ID:    uuid.NewString(),
		Name:  t.Name,
		Level: t.Level + above,
		Tags:  append([]string(nil), t.Tags...),
		Base: stats.Stats{
			Health:      health,
			MaxHealth:   health,
			Attack:      t.Attack + t.PerFloor.Attack*above,
			Defense:     t.Defense + t.PerFloor.Defense*above,
			SpellPower:  t.SpellPower + t.PerFloor.SpellPower*above,
			CritChance:  t.CritChance,
			DodgeChance: t.DodgeChance,
		},
		RegenPerTurn: t.RegenPerTurn,
		Effects:      effect.NewSet(),
		Abilities:    ability.NewBook(t.Abilities...),
		Stance:       combat.Balanced,
	}
	if t.Resource > 0 {
		c.Resource = stats.NewResource(t.ResourceType, t.Resource+t.PerFloor.Resource*above)
	}

	enemy := combat.Enemy{Floor: floor, Theme: theme, TemplateID: t.ID, AIDomain: t.AIDomain}
	if t.Boss != nil {
		c.Role = &combat.Boss{Enemy: enemy, EnrageBelow: t.Boss.EnrageBelow, EnrageEffect: t.Boss.EnrageEffect}
	} else {
		c.Role = &enemy
	}

	if effects != nil {
		src := effect.Source{Type: effect.SourceInnate, ID: t.ID}
		for _, id := range t.Effects {
			inst, err := effects.Instantiate(id, src)
			if err != nil {
				return nil, fmt.Errorf("npc template %q: %w", t.ID, err)
			}
			if _, err := c.Effects.Apply(inst); err != nil {
				return nil, fmt.Errorf("npc template %q: %w", t.ID, err)
			}
		}
	}
	return c, nil
}

// LoadTemplateFromBytes parses a single enemy template from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single Template.
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadFS reads all *.yaml files under dir in fsys, in name order, and
// returns the parsed templates.
//
// Postcondition: Returns all templates or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadFS(fsys fs.FS, dir string) ([]*Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading npc dir %q: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".yaml") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var templates []*Template
	for _, name := range names {
		p := path.Join(dir, name)
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", p, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
func LoadTemplates(dir string) ([]*Template, error) {
	return LoadFS(os.DirFS(dir), ".")
}
