// Package hazard models room-scoped environmental effects: recurring damage
// with class mitigation, a mirrored status effect on every affected
// combatant, and optional flee blocking.
package hazard

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
)

// UntilCleared is the Duration of a hazard that lasts until the room changes.
const UntilCleared = -1

// Effects are the non-damage consequences of standing in a hazard.
type Effects struct {
	FleeDisabled bool            `yaml:"flee_disabled" json:"flee_disabled"`
	Modifiers    stats.Modifiers `yaml:"modifiers" json:"modifiers"`
}

// Def is a hazard definition.
type Def struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description" json:"description,omitempty"`
	DamagePerTurn int      `yaml:"damage_per_turn" json:"damage_per_turn"`
	Effects       Effects  `yaml:"effects" json:"effects"`
	Duration      int      `yaml:"duration" json:"duration"`
	MitigatedBy   []string `yaml:"mitigated_by" json:"mitigated_by,omitempty"`
	Immune        []string `yaml:"immune" json:"immune,omitempty"`
}

// Validate checks the definition's invariants.
func (d *Def) Validate() error {
	if d.ID == "" {
		return errors.New("hazard def: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("hazard def %q: name must not be empty", d.ID)
	}
	if d.DamagePerTurn < 0 {
		return fmt.Errorf("hazard def %q: damage_per_turn must be >= 0", d.ID)
	}
	if d.Duration != UntilCleared && d.Duration < 1 {
		return fmt.Errorf("hazard def %q: duration must be -1 or >= 1, got %d", d.ID, d.Duration)
	}
	return nil
}

// EffectID is the id of the status effect mirroring hazard id.
func EffectID(id string) string { return "hazard:" + id }

// Source is the effect source attributed to hazard id.
func Source(id string) effect.Source {
	return effect.Source{Type: effect.SourceHazard, ID: id}
}

// Damage returns the per-turn damage against a target whose identifiers
// (class id for players, tags for enemies) are keys: zero when any key is
// immune, halved and floored when any key mitigates.
//
// Postcondition: 0 <= result <= d.DamagePerTurn.
func (d *Def) Damage(keys ...string) int {
	for _, k := range keys {
		if slices.Contains(d.Immune, k) {
			return 0
		}
	}
	for _, k := range keys {
		if slices.Contains(d.MitigatedBy, k) {
			return d.DamagePerTurn / 2
		}
	}
	return d.DamagePerTurn
}

func (d *Def) effectInstance() *effect.Instance {
	return effect.NewInstance(&effect.Def{
		ID:        EffectID(d.ID),
		Name:      d.Name,
		Type:      effect.Debuff,
		Duration:  effect.Permanent,
		Modifiers: d.Effects.Modifiers,
		Stacking:  effect.Refresh,
		MaxStacks: 1,
	}, Source(d.ID))
}

// ApplyToPlayer computes this turn's damage for a player of classID and
// pushes the hazard's effect onto fx. The caller applies the damage.
//
// Precondition: fx must be non-nil.
func ApplyToPlayer(d *Def, classID string, fx *effect.Set) (int, error) {
	return apply(d, fx, classID)
}

// ApplyToEnemy is ApplyToPlayer for an enemy, matching mitigation and
// immunity against its tags.
func ApplyToEnemy(d *Def, tags []string, fx *effect.Set) (int, error) {
	return apply(d, fx, tags...)
}

func apply(d *Def, fx *effect.Set, keys ...string) (int, error) {
	if _, err := fx.Apply(d.effectInstance()); err != nil {
		return 0, fmt.Errorf("applying hazard %q: %w", d.ID, err)
	}
	return d.Damage(keys...), nil
}

// RemoveHazardEffects strips from every set the effect instances sourced to
// hazard id, and nothing else.
func RemoveHazardEffects(id string, sets ...*effect.Set) []*effect.Instance {
	var removed []*effect.Instance
	for _, fx := range sets {
		if fx == nil {
			continue
		}
		removed = append(removed, fx.RemoveBySource(Source(id))...)
	}
	return removed
}

// Active is a hazard present in a room with its remaining duration.
type Active struct {
	Def       *Def
	Remaining int
}

// Room holds the hazards of the current room.
type Room struct {
	ID      string
	Hazards []*Active
}

// NewRoom creates a room with hazards defs.
func NewRoom(id string, defs ...*Def) *Room {
	r := &Room{ID: id}
	for _, d := range defs {
		r.Add(d)
	}
	return r
}

// Add places d in the room. Adding a hazard already present resets its
// remaining duration.
func (r *Room) Add(d *Def) {
	for _, a := range r.Hazards {
		if a.Def.ID == d.ID {
			a.Remaining = d.Duration
			return
		}
	}
	r.Hazards = append(r.Hazards, &Active{Def: d, Remaining: d.Duration})
}

// FleeBlocked reports whether any present hazard disables fleeing.
func (r *Room) FleeBlocked() bool {
	if r == nil {
		return false
	}
	for _, a := range r.Hazards {
		if a.Def.Effects.FleeDisabled {
			return true
		}
	}
	return false
}

// Tick decrements every timed hazard. Hazards reaching zero are cleared and
// their effects removed from sets; the cleared definitions are returned.
func (r *Room) Tick(sets ...*effect.Set) []*Def {
	var cleared []*Def
	kept := r.Hazards[:0]
	for _, a := range r.Hazards {
		if a.Remaining != UntilCleared {
			a.Remaining--
			if a.Remaining <= 0 {
				RemoveHazardEffects(a.Def.ID, sets...)
				cleared = append(cleared, a.Def)
				continue
			}
		}
		kept = append(kept, a)
	}
	clear(r.Hazards[len(kept):])
	r.Hazards = kept
	return cleared
}

// Clear removes every hazard and their effects from sets, as on a room or
// floor change.
func (r *Room) Clear(sets ...*effect.Set) {
	for _, a := range r.Hazards {
		RemoveHazardEffects(a.Def.ID, sets...)
	}
	r.Hazards = nil
}

// Registry holds hazard definitions.
type Registry struct {
	defs  map[string]*Def
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def.
func (r *Registry) Register(def *Def) {
	if _, exists := r.defs[def.ID]; !exists {
		r.order = append(r.order, def.ID)
	}
	r.defs[def.ID] = def
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (*Def, bool) {
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
	Hazards []*Def `yaml:"hazards"`
}

// LoadFS parses every *.yaml file under dir holding a "hazards" list.
// A missing duration means UntilCleared.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading hazard dir %q: %w", dir, err)
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
		for _, def := range f.Hazards {
			if def.Duration == 0 {
				def.Duration = UntilCleared
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
