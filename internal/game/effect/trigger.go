package effect

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// MaxCascadeDepth bounds re-entrant trigger firing. Events raised directly by
// combat resolution are depth 0. Events raised by a trigger outcome are one
// deeper. Events deeper than MaxCascadeDepth still have their numeric effect
// applied by the caller, but Dispatch fires nothing for them.
const MaxCascadeDepth = 1

// Trigger names a combat event that effects can react to.
type Trigger string

const (
	OnAttack      Trigger = "on_attack"
	OnDamageDealt Trigger = "on_damage_dealt"
	OnCriticalHit Trigger = "on_critical_hit"
	OnDamageTaken Trigger = "on_damage_taken"
	OnKill        Trigger = "on_kill"
	CombatStart   Trigger = "combat_start"
	CombatEnd     Trigger = "combat_end"
	RoomEnter     Trigger = "room_enter"
	TurnEnd       Trigger = "turn_end"
)

func (t Trigger) valid() bool {
	switch t {
	case OnAttack, OnDamageDealt, OnCriticalHit, OnDamageTaken, OnKill,
		CombatStart, CombatEnd, RoomEnter, TurnEnd:
		return true
	}
	return false
}

// Behavior is what a trigger does when it fires.
type Behavior string

const (
	// ReflectDamage deals Ratio × event amount to the counterpart.
	ReflectDamage Behavior = "reflect_damage"
	// Lifesteal heals the owner for Ratio × event amount.
	Lifesteal Behavior = "lifesteal"
	HealFlat  Behavior = "heal_flat"
	// DamageFlat deals Amount to the counterpart.
	DamageFlat      Behavior = "damage_flat"
	RestoreResource Behavior = "restore_resource"
	// ApplyEffect applies effect Effect to Target ("self" or "other").
	ApplyEffect Behavior = "apply_effect"
	// Script delegates to a Lua hook returning {heal=, damage=, restore=, text=}.
	Script Behavior = "script"
)

// TriggerDef binds a trigger to a behavior on an effect definition.
type TriggerDef struct {
	On       Trigger  `yaml:"on" json:"on"`
	Behavior Behavior `yaml:"behavior" json:"behavior"`
	Ratio    float64  `yaml:"ratio" json:"ratio,omitempty"`
	Amount   int      `yaml:"amount" json:"amount,omitempty"`
	Effect   string   `yaml:"effect" json:"effect,omitempty"`
	Target   string   `yaml:"target" json:"target,omitempty"`
	Script   string   `yaml:"script" json:"script,omitempty"`
}

// Validate checks that the trigger names a known event and carries the
// parameters its behavior needs.
func (t TriggerDef) Validate() error {
	if !t.On.valid() {
		return fmt.Errorf("unknown trigger %q", t.On)
	}
	switch t.Behavior {
	case ReflectDamage, Lifesteal:
		if t.Ratio <= 0 {
			return fmt.Errorf("%s requires ratio > 0", t.Behavior)
		}
	case HealFlat, DamageFlat, RestoreResource:
		if t.Amount <= 0 {
			return fmt.Errorf("%s requires amount > 0", t.Behavior)
		}
	case ApplyEffect:
		if t.Effect == "" {
			return errors.New("apply_effect requires effect")
		}
		if t.Target != "self" && t.Target != "other" {
			return fmt.Errorf("apply_effect target must be self or other, got %q", t.Target)
		}
	case Script:
		if t.Script == "" {
			return errors.New("script requires script")
		}
	default:
		return fmt.Errorf("unknown behavior %q", t.Behavior)
	}
	return nil
}

// Event is one qualifying occurrence of a trigger. Events are minted by a
// Guard so every event in a turn has a distinct ID.
type Event struct {
	ID      uint64
	Trigger Trigger
	Amount  int
	Depth   int
}

// Outcome is the intent produced by one trigger firing. The caller applies it:
// Heal and Restore go to the effect's owner, Damage to the counterpart.
type Outcome struct {
	InstanceID  string
	EffectID    string
	EffectName  string
	Trigger     Trigger
	Behavior    Behavior
	Heal        int
	Damage      int
	Restore     int
	ApplyEffect string
	ApplyTo     string
	Narrative   string
	Depth       int
}

type guardKey struct {
	instanceID string
	trigger    Trigger
	eventID    uint64
}

// Guard enforces at-most-once firing per (effect instance, trigger, event)
// and counts events suppressed by the cascade cap. Reset it each turn.
type Guard struct {
	fired  map[guardKey]struct{}
	next   uint64
	capped int
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{fired: make(map[guardKey]struct{})}
}

// Event mints a new event with a unique ID.
func (g *Guard) Event(t Trigger, amount, depth int) Event {
	g.next++
	return Event{ID: g.next, Trigger: t, Amount: amount, Depth: depth}
}

// Reset forgets fired triggers. Event IDs keep increasing.
func (g *Guard) Reset() {
	clear(g.fired)
}

// Capped returns how many events were suppressed by MaxCascadeDepth.
func (g *Guard) Capped() int { return g.capped }

func (g *Guard) claim(k guardKey) bool {
	if _, seen := g.fired[k]; seen {
		return false
	}
	g.fired[k] = struct{}{}
	return true
}

// ScriptCaller evaluates Lua trigger hooks.
type ScriptCaller interface {
	Call(scope, hook string, args map[string]any) (lua.LValue, error)
}

// Dispatcher scans a Set for effects reacting to an event and turns each
// match into an Outcome.
type Dispatcher struct {
	scripts ScriptCaller
	scope   string
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher. scripts may be nil, in which case
// script behaviors never fire.
//
// Precondition: logger must be non-nil.
func NewDispatcher(scripts ScriptCaller, scope string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{scripts: scripts, scope: scope, logger: logger}
}

// Dispatch returns the outcomes of every trigger in set matching ev, in
// effect insertion order.
//
// Postcondition: no (instance, trigger, event) triple fires twice for the same
// guard; returns nil when ev.Depth > MaxCascadeDepth.
func (d *Dispatcher) Dispatch(set *Set, ev Event, guard *Guard) []Outcome {
	if ev.Depth > MaxCascadeDepth {
		guard.capped++
		d.logger.Debug("trigger cascade capped",
			zap.String("trigger", string(ev.Trigger)),
			zap.Int("depth", ev.Depth),
		)
		return nil
	}
	var out []Outcome
	for _, inst := range set.All() {
		for _, td := range inst.Triggers {
			if td.On != ev.Trigger {
				continue
			}
			if !guard.claim(guardKey{instanceID: inst.InstanceID, trigger: ev.Trigger, eventID: ev.ID}) {
				continue
			}
			o, ok := d.resolve(inst, td, ev)
			if !ok {
				continue
			}
			out = append(out, o)
		}
	}
	return out
}

func (d *Dispatcher) resolve(inst *Instance, td TriggerDef, ev Event) (Outcome, bool) {
	o := Outcome{
		InstanceID: inst.InstanceID,
		EffectID:   inst.ID,
		EffectName: inst.Name,
		Trigger:    ev.Trigger,
		Behavior:   td.Behavior,
		Depth:      ev.Depth,
	}
	switch td.Behavior {
	case ReflectDamage:
		o.Damage = ratioOf(ev.Amount, td.Ratio)
		o.Narrative = fmt.Sprintf("%s reflects %d damage.", inst.Name, o.Damage)
	case Lifesteal:
		o.Heal = ratioOf(ev.Amount, td.Ratio)
		o.Narrative = fmt.Sprintf("%s drains %d health.", inst.Name, o.Heal)
	case HealFlat:
		o.Heal = td.Amount
		o.Narrative = fmt.Sprintf("%s restores %d health.", inst.Name, o.Heal)
	case DamageFlat:
		o.Damage = td.Amount
		o.Narrative = fmt.Sprintf("%s deals %d damage.", inst.Name, o.Damage)
	case RestoreResource:
		o.Restore = td.Amount
		o.Narrative = fmt.Sprintf("%s restores %d resource.", inst.Name, o.Restore)
	case ApplyEffect:
		o.ApplyEffect = td.Effect
		o.ApplyTo = td.Target
		o.Narrative = fmt.Sprintf("%s triggers %s.", inst.Name, td.Effect)
	case Script:
		return d.runScript(o, inst, td, ev)
	}
	if o.Heal == 0 && o.Damage == 0 && o.Restore == 0 && o.ApplyEffect == "" {
		return Outcome{}, false
	}
	return o, true
}

func (d *Dispatcher) runScript(o Outcome, inst *Instance, td TriggerDef, ev Event) (Outcome, bool) {
	if d.scripts == nil {
		return Outcome{}, false
	}
	ret, err := d.scripts.Call(d.scope, td.Script, map[string]any{
		"trigger": string(ev.Trigger),
		"amount":  ev.Amount,
		"stacks":  inst.Stacks,
		"effect":  inst.ID,
	})
	if err != nil {
		d.logger.Warn("trigger script failed",
			zap.String("effect", inst.ID),
			zap.String("script", td.Script),
			zap.Error(err),
		)
		return Outcome{}, false
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return Outcome{}, false
	}
	o.Heal = max(0, int(lua.LVAsNumber(tbl.RawGetString("heal"))))
	o.Damage = max(0, int(lua.LVAsNumber(tbl.RawGetString("damage"))))
	o.Restore = max(0, int(lua.LVAsNumber(tbl.RawGetString("restore"))))
	o.Narrative = lua.LVAsString(tbl.RawGetString("text"))
	if o.Heal == 0 && o.Damage == 0 && o.Restore == 0 {
		return Outcome{}, false
	}
	if o.Narrative == "" {
		o.Narrative = fmt.Sprintf("%s stirs.", inst.Name)
	}
	return o, true
}

func ratioOf(amount int, ratio float64) int {
	return int(math.Floor(float64(amount) * ratio))
}
