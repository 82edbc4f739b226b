// Package ability validates and executes active abilities: resource costs,
// cooldowns, level scaling, stat scaling and the effects an ability applies.
package ability

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/delve/internal/game/stats"
)

// ID identifies an ability definition.
type ID string

// Target says who an ability's damage and target effects land on.
type Target string

const (
	TargetEnemy Target = "enemy"
	TargetSelf  Target = "self"
)

// Scaling adds Ratio × the named stat to an ability's multiplier.
// A zero Scaling (empty Stat) means no scaling.
type Scaling struct {
	Stat  stats.StatName `yaml:"stat"`
	Ratio float64        `yaml:"ratio"`
}

// Def is the static definition of an ability, loaded from YAML.
type Def struct {
	ID             ID                 `yaml:"id"`
	Name           string             `yaml:"name"`
	Description    string             `yaml:"description"`
	ResourceType   stats.ResourceType `yaml:"resource_type"`
	Cost           int                `yaml:"cost"`
	Cooldown       int                `yaml:"cooldown"`
	BaseDamage     int                `yaml:"base_damage"`
	BaseHealing    int                `yaml:"base_healing"`
	Scaling        Scaling            `yaml:"scaling"`
	AppliesEffects []string           `yaml:"applies_effects"`
	SelfEffects    []string           `yaml:"self_effects"`
	Tags           []string           `yaml:"tags"`
	Target         Target             `yaml:"target"`
	MaxLevel       int                `yaml:"max_level"`
	PerLevelScale  float64            `yaml:"per_level_scale"`
	LevelCostBase  int                `yaml:"level_cost_base"`
}

// Validate checks the definition's invariants.
func (d *Def) Validate() error {
	if d.ID == "" {
		return errors.New("ability def: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("ability def %q: name must not be empty", d.ID)
	}
	if d.Cost < 0 || d.Cooldown < 0 || d.BaseDamage < 0 || d.BaseHealing < 0 {
		return fmt.Errorf("ability def %q: cost, cooldown, base_damage and base_healing must be >= 0", d.ID)
	}
	if d.Cost > 0 && !d.ResourceType.Valid() {
		return fmt.Errorf("ability def %q: resource_type %q is not a known resource", d.ID, d.ResourceType)
	}
	if d.Scaling.Stat != "" && !d.Scaling.Stat.Valid() {
		return fmt.Errorf("ability def %q: scaling stat %q is unknown", d.ID, d.Scaling.Stat)
	}
	if d.Target != TargetEnemy && d.Target != TargetSelf {
		return fmt.Errorf("ability def %q: target must be enemy or self, got %q", d.ID, d.Target)
	}
	if d.MaxLevel < 1 {
		return fmt.Errorf("ability def %q: max_level must be >= 1", d.ID)
	}
	if d.PerLevelScale < 0 || d.LevelCostBase < 0 {
		return fmt.Errorf("ability def %q: per_level_scale and level_cost_base must be >= 0", d.ID)
	}
	return nil
}

// HasTag reports whether the ability carries tag.
func (d *Def) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Registry holds ability definitions in declaration order.
type Registry struct {
	defs  map[ID]*Def
	order []ID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[ID]*Def)}
}

// Register adds def. A later registration with the same ID replaces the
// earlier one but keeps its position.
func (r *Registry) Register(def *Def) {
	if _, exists := r.defs[def.ID]; !exists {
		r.order = append(r.order, def.ID)
	}
	r.defs[def.ID] = def
}

// Get returns the definition for id.
func (r *Registry) Get(id ID) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns every definition in declaration order.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

type defFile struct {
	Abilities []*Def `yaml:"abilities"`
}

// LoadFS parses every *.yaml file under dir in fsys. Each file holds an
// "abilities" list. Files are read in lexical order.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading ability dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		p := path.Join(dir, e.Name())
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
		for _, def := range f.Abilities {
			if def.Target == "" {
				def.Target = TargetEnemy
			}
			if def.MaxLevel == 0 {
				def.MaxLevel = 1
			}
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
