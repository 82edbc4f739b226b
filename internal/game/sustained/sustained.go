// Package sustained manages toggled abilities that hold a constant effect on
// their owner while active and charge a cost every turn until they are
// switched off or can no longer be paid for.
package sustained

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
)

// ID identifies a sustained ability definition.
type ID string

// TickCost is the per-turn payload while active.
type TickCost struct {
	ResourceDrain int `yaml:"resource_drain" json:"resource_drain"`
	HealthDrain   int `yaml:"health_drain" json:"health_drain"`
	Heal          int `yaml:"heal" json:"heal"`
	EnemyDamage   int `yaml:"enemy_damage" json:"enemy_damage"`
}

// Def is the static definition of a sustained ability.
type Def struct {
	ID             ID                 `yaml:"id" json:"id"`
	Name           string             `yaml:"name" json:"name"`
	Description    string             `yaml:"description" json:"description,omitempty"`
	ResourceType   stats.ResourceType `yaml:"resource_type" json:"resource_type"`
	ActivationCost int                `yaml:"activation_cost" json:"activation_cost"`
	HealthCost     int                `yaml:"health_cost" json:"health_cost"`
	Tick           TickCost           `yaml:"tick" json:"tick"`
	ConstantEffect string             `yaml:"constant_effect" json:"constant_effect"`
	ExclusiveGroup string             `yaml:"exclusive_group" json:"exclusive_group,omitempty"`
}

// Validate checks the definition's invariants.
func (d *Def) Validate() error {
	if d.ID == "" {
		return errors.New("sustained def: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("sustained def %q: name must not be empty", d.ID)
	}
	if d.ConstantEffect == "" {
		return fmt.Errorf("sustained def %q: constant_effect must not be empty", d.ID)
	}
	if d.ActivationCost < 0 || d.HealthCost < 0 || d.Tick.ResourceDrain < 0 ||
		d.Tick.HealthDrain < 0 || d.Tick.Heal < 0 || d.Tick.EnemyDamage < 0 {
		return fmt.Errorf("sustained def %q: costs and tick values must be >= 0", d.ID)
	}
	if (d.ActivationCost > 0 || d.Tick.ResourceDrain > 0) && !d.ResourceType.Valid() {
		return fmt.Errorf("sustained def %q: resource_type %q is not a known resource", d.ID, d.ResourceType)
	}
	return nil
}

// Instance is one combatant's copy of a sustained ability.
//
// Invariant: Active == (EffectInstanceID != "").
type Instance struct {
	Def              Def    `json:"def"`
	Active           bool   `json:"active"`
	EffectInstanceID string `json:"effect_instance_id,omitempty"`
}

// EffectID returns the ID the constant effect of ability id is held under.
// It is distinct from the effect definition's own ID so a sustained ability
// never merges with a copy of the same effect applied by something else.
func EffectID(id ID) string { return "sustained:" + string(id) }

// Source attributes the constant effect of ability id.
func Source(id ID) effect.Source {
	return effect.Source{Type: effect.SourceSustained, ID: string(id)}
}

// NewInstance returns an inactive instance of def.
func NewInstance(def *Def) *Instance {
	return &Instance{Def: *def}
}

// Find returns the instance for id in list, or nil.
func Find(list []*Instance, id ID) *Instance {
	for _, inst := range list {
		if inst.Def.ID == id {
			return inst
		}
	}
	return nil
}

// Pools is the owner's health and resource as seen by the engine. Engine
// operations take Pools by value and return the updated value.
type Pools struct {
	Resource  stats.Resource
	Health    int
	MaxHealth int
}

// Deactivation reasons.
const (
	ReasonManual           = "deactivated"
	ReasonResourceDepleted = "resource depleted"
	ReasonHealthDepleted   = "health too low to sustain"
)

// TickReport describes one ProcessTurn call.
type TickReport struct {
	Ability       ID
	Deactivated   bool
	Reason        string
	ResourceSpent int
	HealthSpent   int
	Healed        int
	EnemyDamage   int
	Removed       *effect.Instance
	Narrative     string
}

// Engine runs activation, per-turn upkeep and deactivation.
type Engine struct {
	effects *effect.Registry
	logger  *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: effects and logger must be non-nil.
func NewEngine(effects *effect.Registry, logger *zap.Logger) *Engine {
	return &Engine{effects: effects, logger: logger}
}

// CanActivate reports whether inst could be switched on now. Checks run in
// order: already active, resource, health, exclusivity.
//
// Postcondition: returns nil or a *stats.ValidationError; nothing is mutated.
func CanActivate(inst *Instance, pools Pools, all []*Instance) error {
	def := inst.Def
	if inst.Active {
		return stats.Reject(stats.ReasonAlreadyActive, "%s is already active", def.Name)
	}
	if !pools.Resource.CanAfford(def.ResourceType, def.ActivationCost) {
		return stats.Reject(stats.ReasonInsufficientResource,
			"%s needs %d %s, have %d %s", def.Name, def.ActivationCost, def.ResourceType, pools.Resource.Current, pools.Resource.Type)
	}
	if def.HealthCost > 0 && pools.Health-def.HealthCost < 1 {
		return stats.Reject(stats.ReasonInsufficientHealth,
			"%s costs %d health, have %d", def.Name, def.HealthCost, pools.Health)
	}
	if def.ExclusiveGroup != "" {
		for _, other := range all {
			if other != inst && other.Active && other.Def.ExclusiveGroup == def.ExclusiveGroup {
				return stats.Reject(stats.ReasonExclusivityConflict,
					"%s cannot run alongside %s", def.Name, other.Def.Name)
			}
		}
	}
	return nil
}

// Activate switches inst on: the activation cost is paid and the constant
// effect is applied to fx in the same step.
//
// Precondition: inst, fx must be non-nil; all is the owner's full sustained list.
// Postcondition: on error pools and fx are unchanged and inst stays inactive.
func (e *Engine) Activate(inst *Instance, pools Pools, all []*Instance, fx *effect.Set) (Pools, error) {
	if err := CanActivate(inst, pools, all); err != nil {
		return pools, err
	}
	def := inst.Def

	constant, err := e.effects.Instantiate(def.ConstantEffect, Source(def.ID))
	if err != nil {
		return pools, fmt.Errorf("activating %q: %w", def.ID, err)
	}
	constant.ID = EffectID(def.ID)
	constant.Duration = effect.Permanent
	if stale := fx.Get(constant.ID); stale != nil {
		return pools, fmt.Errorf("activating %q: effect %q is already held by instance %s", def.ID, constant.ID, stale.InstanceID)
	}
	live, err := fx.Apply(constant)
	if err != nil {
		return pools, fmt.Errorf("activating %q: %w", def.ID, err)
	}

	if err := pools.Resource.Spend(def.ResourceType, def.ActivationCost); err != nil {
		fx.RemoveInstance(live.InstanceID)
		return pools, err
	}
	pools.Health -= def.HealthCost
	inst.Active = true
	inst.EffectInstanceID = live.InstanceID
	e.logger.Debug("sustained activated", zap.String("ability", string(def.ID)))
	return pools, nil
}

// Deactivate switches inst off and removes its constant effect in the same
// step. Nothing is refunded. Deactivating an inactive instance is a no-op.
//
// Postcondition: !inst.Active and the constant effect is gone from fx.
func (e *Engine) Deactivate(inst *Instance, fx *effect.Set) *effect.Instance {
	if !inst.Active {
		return nil
	}
	removed := fx.RemoveInstance(inst.EffectInstanceID)
	inst.Active = false
	inst.EffectInstanceID = ""
	e.logger.Debug("sustained deactivated", zap.String("ability", string(inst.Def.ID)))
	return removed
}

// ProcessTurn charges one turn of upkeep. If the resource drain would take the
// pool below zero, or the health drain would take health to zero or below,
// the instance is force-deactivated instead and nothing is charged.
//
// Postcondition: pools.Resource.Current >= 0 and pools.Health >= 1 whenever
// it was >= 1 on entry; a deactivated instance no longer has its effect in fx.
func (e *Engine) ProcessTurn(inst *Instance, pools Pools, fx *effect.Set) (Pools, TickReport) {
	rep := TickReport{Ability: inst.Def.ID}
	if !inst.Active {
		return pools, rep
	}
	tick := inst.Def.Tick

	// Charged against a copy so an unpayable tick leaves pools untouched.
	res := pools.Resource
	var spendErr error
	if tick.ResourceDrain > 0 {
		spendErr = res.Spend(inst.Def.ResourceType, tick.ResourceDrain)
	}

	reason := ""
	switch {
	case spendErr != nil:
		reason = ReasonResourceDepleted
	case tick.HealthDrain > 0 && pools.Health-tick.HealthDrain <= 0:
		reason = ReasonHealthDepleted
	}
	if reason != "" {
		e.logger.Debug("sustained upkeep unpaid",
			zap.String("ability", string(inst.Def.ID)),
			zap.String("reason", reason),
			zap.Error(spendErr))
		rep.Deactivated = true
		rep.Reason = reason
		rep.Removed = e.Deactivate(inst, fx)
		rep.Narrative = fmt.Sprintf("%s fades: %s.", inst.Def.Name, reason)
		return pools, rep
	}

	pools.Resource = res
	if tick.ResourceDrain > 0 {
		rep.ResourceSpent = tick.ResourceDrain
	}
	pools.Health -= tick.HealthDrain
	rep.HealthSpent = tick.HealthDrain
	if tick.Heal > 0 {
		before := pools.Health
		pools.Health = stats.Clamp(pools.Health+tick.Heal, 0, pools.MaxHealth)
		rep.Healed = pools.Health - before
	}
	rep.EnemyDamage = tick.EnemyDamage
	rep.Narrative = fmt.Sprintf("%s is sustained.", inst.Def.Name)
	return pools, rep
}

// Registry holds sustained definitions.
type Registry struct {
	defs map[ID]*Def
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[ID]*Def)}
}

// Register adds def.
func (r *Registry) Register(def *Def) { r.defs[def.ID] = def }

// Get returns the definition for id.
func (r *Registry) Get(id ID) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int { return len(r.defs) }

// All returns every definition sorted by ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type defFile struct {
	Sustained []*Def `yaml:"sustained"`
}

// LoadFS parses every *.yaml file under dir holding a "sustained" list.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading sustained dir %q: %w", dir, err)
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
		for _, def := range f.Sustained {
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
