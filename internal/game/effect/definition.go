// Package effect implements the status effect engine: effect definitions,
// the ordered per-combatant effect set with stacking, tick and expiry rules,
// and trigger dispatch over active effects.
package effect

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/delve/internal/game/stats"
)

// Type classifies an effect for display and cleanse rules.
type Type string

const (
	Buff    Type = "buff"
	Debuff  Type = "debuff"
	Neutral Type = "neutral"
)

// Stacking is the policy applied when an effect id is re-applied.
type Stacking string

const (
	// Refresh resets the remaining duration.
	Refresh Stacking = "refresh"
	// Stack adds stacks up to MaxStacks and keeps the more severe modifiers.
	Stack Stacking = "stack"
)

// Permanent is the duration value for effects that never tick down.
const Permanent = -1

// TickEffect is the per-turn payload of an effect, scaled by current stacks.
type TickEffect struct {
	Damage        int `yaml:"damage" json:"damage"`
	Heal          int `yaml:"heal" json:"heal"`
	ResourceDrain int `yaml:"resource_drain" json:"resource_drain"`
}

// IsZero reports whether the tick does nothing.
func (t TickEffect) IsZero() bool { return t == TickEffect{} }

// Def is the static definition of an effect, loaded from YAML.
type Def struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Type        Type            `yaml:"type"`
	Duration    int             `yaml:"duration"` // turns; -1 = permanent
	Modifiers   stats.Modifiers `yaml:"modifiers"`
	Tick        TickEffect      `yaml:"tick"`
	Stacking    Stacking        `yaml:"stacking"`
	MaxStacks   int             `yaml:"max_stacks"`
	Triggers    []TriggerDef    `yaml:"triggers"`
}

// Validate checks the definition's invariants.
//
// Postcondition: nil means ID and Name are set, Type and Stacking are known,
// Duration is -1 or >= 1, MaxStacks >= 0 and every trigger is well formed.
func (d *Def) Validate() error {
	if d.ID == "" {
		return errors.New("effect def: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("effect def %q: name must not be empty", d.ID)
	}
	switch d.Type {
	case Buff, Debuff, Neutral:
	default:
		return fmt.Errorf("effect def %q: type must be one of [buff, debuff, neutral], got %q", d.ID, d.Type)
	}
	if d.Duration != Permanent && d.Duration < 1 {
		return fmt.Errorf("effect def %q: duration must be -1 or >= 1, got %d", d.ID, d.Duration)
	}
	switch d.Stacking {
	case Refresh, Stack:
	default:
		return fmt.Errorf("effect def %q: stacking must be refresh or stack, got %q", d.ID, d.Stacking)
	}
	if d.MaxStacks < 0 {
		return fmt.Errorf("effect def %q: max_stacks must be >= 0", d.ID)
	}
	for i, t := range d.Triggers {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("effect def %q trigger %d: %w", d.ID, i, err)
		}
	}
	return nil
}

// Registry holds effect definitions keyed by ID.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def, overwriting any existing entry with the same ID.
//
// Precondition: def is non-nil and valid.
func (r *Registry) Register(def *Def) {
	r.defs[def.ID] = def
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns every definition sorted by ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Instantiate builds a fresh instance of effect id attributed to src.
//
// Postcondition: returns an error if id is not registered.
func (r *Registry) Instantiate(id string, src Source) (*Instance, error) {
	def, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("unknown effect %q", id)
	}
	return NewInstance(def, src), nil
}

type defFile struct {
	Effects []*Def `yaml:"effects"`
}

// LoadFS parses every *.yaml file under dir in fsys. Each file holds an
// "effects" list.
//
// Postcondition: Returns a populated Registry, or an error naming the first
// file that fails to parse or validate.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
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
		for _, def := range f.Effects {
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
