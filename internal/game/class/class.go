// Package class defines playable classes and creates level-1 players from them.
package class

import (
	"bytes"
	"errors"
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
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

// Def defines a playable class.
//
// Precondition: ID, Name and a valid Resource must be set after loading.
type Def struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Resource    stats.ResourceType `yaml:"resource"`
	ResourceMax int                `yaml:"resource_max"`
	// StartEmpty begins encounters-to-be with an empty pool, e.g. rage.
	StartEmpty   bool           `yaml:"start_empty"`
	RegenPerTurn int            `yaml:"regen_per_turn"`
	Health       int            `yaml:"health"`
	Attack       int            `yaml:"attack"`
	Defense      int            `yaml:"defense"`
	SpellPower   int            `yaml:"spell_power"`
	CritChance   float64        `yaml:"crit_chance"`
	DodgeChance  float64        `yaml:"dodge_chance"`
	Growth       combat.Growth  `yaml:"growth"`
	Abilities    []ability.ID   `yaml:"abilities"`
	Sustained    []sustained.ID `yaml:"sustained"`
	StartingGold int            `yaml:"starting_gold"`
}

// Validate checks the definition's invariants.
func (d *Def) Validate() error {
	if d.ID == "" {
		return errors.New("class def: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("class def %q: name must not be empty", d.ID)
	}
	if !d.Resource.Valid() {
		return fmt.Errorf("class def %q: resource %q is not valid", d.ID, d.Resource)
	}
	if d.ResourceMax < 0 || d.RegenPerTurn < 0 {
		return fmt.Errorf("class def %q: resource_max and regen_per_turn must be >= 0", d.ID)
	}
	if d.Health < 1 {
		return fmt.Errorf("class def %q: health must be >= 1", d.ID)
	}
	if d.CritChance < 0 || d.CritChance > 1 || d.DodgeChance < 0 || d.DodgeChance > 1 {
		return fmt.Errorf("class def %q: crit_chance and dodge_chance must be in [0, 1]", d.ID)
	}
	return nil
}

// NewPlayer creates a level-1 player of this class. Sustained abilities are
// resolved against sus; nil skips them.
//
// Postcondition: the player is at full health with a fresh ID; an unknown
// sustained id returns an error.
func (d *Def) NewPlayer(name string, sus *sustained.Registry) (*combat.Combatant, error) {
	res := stats.NewResource(d.Resource, d.ResourceMax)
	if d.StartEmpty {
		res.Current = 0
	}
	p := &combat.Combatant{
		ID:      uuid.NewString(),
		Name:    name,
		Role:    &combat.Player{Gold: d.StartingGold, Growth: d.Growth},
		Level:   1,
		ClassID: d.ID,
		Base: stats.Stats{
			Health:      d.Health,
			MaxHealth:   d.Health,
			Attack:      d.Attack,
			Defense:     d.Defense,
			SpellPower:  d.SpellPower,
			CritChance:  d.CritChance,
			DodgeChance: d.DodgeChance,
		},
		Resource:     res,
		RegenPerTurn: d.RegenPerTurn,
		Effects:      effect.NewSet(),
		Abilities:    ability.NewBook(d.Abilities...),
		Stance:       combat.Balanced,
	}
	if sus == nil {
		return p, nil
	}
	for _, id := range d.Sustained {
		def, ok := sus.Get(id)
		if !ok {
			return nil, fmt.Errorf("class %q: unknown sustained ability %q", d.ID, id)
		}
		p.Sustained = append(p.Sustained, sustained.NewInstance(def))
	}
	return p, nil
}

// Registry provides lookup of classes by ID.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry returns an empty Registry.
//
// Postcondition: Returns a non-nil *Registry ready to accept registrations.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def; if called multiple times with the same ID, the last call wins.
//
// Precondition: def must be non-nil with a non-empty ID.
func (r *Registry) Register(def *Def) {
	if def == nil || def.ID == "" {
		panic("class.Registry.Register: precondition violated: def must be non-nil with an ID")
	}
	r.defs[def.ID] = def
}

// Get returns the class for id.
func (r *Registry) Get(id string) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns every class sorted by ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type defFile struct {
	Classes []*Def `yaml:"classes"`
}

// LoadFS parses every *.yaml file under dir holding a "classes" list.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading class dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".yaml") {
			continue
		}
		p := path.Join(dir, ent.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		var f defFile
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		for _, def := range f.Classes {
			if err := def.Validate(); err != nil {
				return nil, fmt.Errorf("loading %q: %w", p, err)
			}
			reg.Register(def)
		}
	}
	return reg, nil
}

// LoadDirectory is LoadFS over the host directory dir.
func LoadDirectory(dir string) (*Registry, error) {
	return LoadFS(os.DirFS(dir), ".")
}
