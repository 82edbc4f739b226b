package ability

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
)

// LevelsPerMilestone is how many player levels grant one automatic ability
// level.
const LevelsPerMilestone = 3

// CanUse reports whether an ability may be used now. The resource check runs
// before the cooldown check, so an ability that is both unaffordable and
// cooling down reports InsufficientResource.
//
// Precondition: book and def must be non-nil.
// Postcondition: returns nil or a *stats.ValidationError; nothing is mutated.
func CanUse(res stats.Resource, book *Book, def *Def) error {
	if !res.CanAfford(def.ResourceType, def.Cost) {
		return stats.Reject(stats.ReasonInsufficientResource,
			"%s costs %d %s, have %d %s", def.Name, def.Cost, def.ResourceType, res.Current, res.Type)
	}
	if cd := book.Cooldown(def.ID); cd > 0 {
		return stats.Reject(stats.ReasonOnCooldown, "%s is ready in %d turns", def.Name, cd)
	}
	return nil
}

// LevelMultiplier returns 1 + (level-1) × PerLevelScale.
func LevelMultiplier(def *Def, level int) float64 {
	return 1 + float64(max(1, level)-1)*def.PerLevelScale
}

// Amount computes base × levelMultiplier × (1 + ratio × statValue), floored.
// With no scaling stat the last factor is 1.
//
// Postcondition: returns >= 0.
func Amount(def *Def, base, level int, caster stats.Stats) int {
	if base <= 0 {
		return 0
	}
	v := float64(base) * LevelMultiplier(def, level)
	if def.Scaling.Stat != "" {
		v *= 1 + def.Scaling.Ratio*float64(caster.Value(def.Scaling.Stat))
	}
	return max(0, int(math.Floor(v)))
}

// LevelCost is the price of raising def from level to level+1.
func LevelCost(def *Def, level int) int {
	return def.LevelCostBase * max(1, level)
}

// Caster is the slice of combatant state an ability reads and mutates.
type Caster struct {
	Name     string
	Resource *stats.Resource
	Book     *Book
	Stats    stats.Stats // effective stats
}

// Result describes an executed ability. Damage and Healing are raw amounts
// before stance, combo, crit or target rules; the caller applies them.
type Result struct {
	Ability       ID
	Name          string
	Target        Target
	Tags          []string
	Level         int
	Cost          int
	Damage        int
	Healing       int
	TargetEffects []*effect.Instance
	SelfEffects   []*effect.Instance
	Narrative     string
}

// Engine executes abilities against the registries it was built with.
type Engine struct {
	abilities *Registry
	effects   *effect.Registry
	logger    *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: all arguments must be non-nil.
func NewEngine(abilities *Registry, effects *effect.Registry, logger *zap.Logger) *Engine {
	return &Engine{abilities: abilities, effects: effects, logger: logger}
}

// Registry returns the ability registry the engine resolves against.
func (e *Engine) Registry() *Registry { return e.abilities }

// Lookup returns the definition of a known ability, rejecting unknown or
// unlearned ids with ReasonUnknownAbility.
func (e *Engine) Lookup(book *Book, id ID) (*Def, error) {
	def, ok := e.abilities.Get(id)
	if !ok || !book.Knows(id) {
		return nil, stats.Reject(stats.ReasonUnknownAbility, "%q is not a known ability", id)
	}
	return def, nil
}

// Check validates use of id by c without mutating anything.
func (e *Engine) Check(c Caster, id ID) (*Def, error) {
	def, err := e.Lookup(c.Book, id)
	if err != nil {
		return nil, err
	}
	if err := CanUse(*c.Resource, c.Book, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Execute validates and uses ability id: the cost is deducted, the cooldown
// set, damage and healing computed, and effect instances built. Effects are
// returned, not applied.
//
// Precondition: c.Resource and c.Book must be non-nil.
// Postcondition: on error, c is unchanged.
func (e *Engine) Execute(c Caster, id ID) (Result, error) {
	def, err := e.Check(c, id)
	if err != nil {
		e.logger.Info("ability rejected",
			zap.String("caster", c.Name),
			zap.String("ability", string(id)),
			zap.Error(err),
		)
		return Result{}, err
	}

	src := effect.Source{Type: effect.SourceAbility, ID: string(def.ID)}
	targetFx, err := e.instantiate(def.AppliesEffects, src)
	if err != nil {
		return Result{}, err
	}
	selfFx, err := e.instantiate(def.SelfEffects, src)
	if err != nil {
		return Result{}, err
	}

	if err := c.Resource.Spend(def.ResourceType, def.Cost); err != nil {
		return Result{}, err
	}
	c.Book.SetCooldown(def.ID, def.Cooldown)

	level := c.Book.Level(def.ID)
	res := Result{
		Ability:       def.ID,
		Name:          def.Name,
		Target:        def.Target,
		Tags:          def.Tags,
		Level:         level,
		Cost:          def.Cost,
		Damage:        Amount(def, def.BaseDamage, level, c.Stats),
		Healing:       Amount(def, def.BaseHealing, level, c.Stats),
		TargetEffects: targetFx,
		SelfEffects:   selfFx,
		Narrative:     fmt.Sprintf("%s uses %s.", c.Name, def.Name),
	}
	e.logger.Debug("ability executed",
		zap.String("caster", c.Name),
		zap.String("ability", string(def.ID)),
		zap.Int("level", level),
		zap.Int("damage", res.Damage),
		zap.Int("healing", res.Healing),
	)
	return res, nil
}

func (e *Engine) instantiate(ids []string, src effect.Source) ([]*effect.Instance, error) {
	var out []*effect.Instance
	for _, id := range ids {
		inst, err := e.effects.Instantiate(id, src)
		if err != nil {
			return nil, fmt.Errorf("ability %q: %w", src.ID, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// LevelUp raises id by one level if budget covers LevelCost. Cooldown is
// never changed.
//
// Postcondition: returns the amount spent; on error the book is unchanged.
func LevelUp(book *Book, def *Def, budget int) (int, error) {
	level := book.Level(def.ID)
	if level >= def.MaxLevel {
		return 0, stats.Reject(stats.ReasonMaxLevel, "%s is already level %d", def.Name, level)
	}
	cost := LevelCost(def, level)
	if budget < cost {
		return 0, stats.Reject(stats.ReasonInsufficientFunds, "%s level %d costs %d, have %d", def.Name, level+1, cost, budget)
	}
	book.SetLevel(def.ID, level+1)
	return cost, nil
}

// AutoLevel grants one level to every known ability per milestone crossed
// between oldLevel and newLevel, capped at each ability's MaxLevel. It
// returns the abilities that changed.
func AutoLevel(book *Book, reg *Registry, oldLevel, newLevel int) []ID {
	gained := newLevel/LevelsPerMilestone - oldLevel/LevelsPerMilestone
	if gained <= 0 {
		return nil
	}
	var raised []ID
	for _, id := range book.Known {
		def, ok := reg.Get(id)
		if !ok {
			continue
		}
		cur := book.Level(id)
		next := min(def.MaxLevel, cur+gained)
		if next > cur {
			book.SetLevel(id, next)
			raised = append(raised, id)
		}
	}
	return raised
}
