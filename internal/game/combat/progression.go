package combat

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/narrative"
)

// BossXPBonus is added to the base XP of a defeated boss.
const BossXPBonus = 50

// BaseRewards returns the reward for defeating enemy before narration:
// 10 × level × floor XP (plus BossXPBonus for a boss) and 5 × floor +
// 2 × level gold.
func BaseRewards(enemy *Combatant) (xp, gold int) {
	floor := enemy.Floor()
	level := max(1, enemy.Level)
	xp = 10 * level * floor
	if _, ok := enemy.Role.(*Boss); ok {
		xp += BossXPBonus
	}
	gold = 5*floor + 2*level
	return xp, gold
}

// ClampReward bounds a suggested reward to [base × lo, base × hi], floored.
// A non-positive suggestion means no suggestion and yields base.
func ClampReward(suggested, base int, lo, hi float64) int {
	if suggested <= 0 {
		return base
	}
	floor := int(math.Floor(float64(base) * lo))
	ceil := int(math.Floor(float64(base) * hi))
	return stats.Clamp(suggested, floor, ceil)
}

// XPToNext is the experience needed to advance from level.
//
// Postcondition: Returns >= 1.
func XPToNext(level, perLevel int) int {
	return max(1, perLevel*max(1, level))
}

// AwardXP adds xp to the player c and applies every level gained: stat growth
// raises max and current health and resource, and abilities gain automatic
// levels at milestones. It returns the number of levels gained.
//
// Precondition: c has a *Player role.
func (e *Engine) AwardXP(c *Combatant, xp int) int {
	p := c.PlayerRole()
	if p == nil || xp <= 0 {
		return 0
	}
	p.XP += xp
	start := c.Level
	for p.XP >= XPToNext(c.Level, e.rules.XPPerLevel) {
		p.XP -= XPToNext(c.Level, e.rules.XPPerLevel)
		c.Level++
		g := p.Growth
		c.Base.MaxHealth += g.MaxHealth
		c.Base.Health += g.MaxHealth
		c.Base.Attack += g.Attack
		c.Base.Defense += g.Defense
		c.Base.SpellPower += g.SpellPower
		c.Resource.Max += g.Resource
		c.Resource.Current += g.Resource
	}
	gained := c.Level - start
	if gained > 0 {
		raised := ability.AutoLevel(c.Abilities, e.abilities.Registry(), start, c.Level)
		e.logger.Info("level up",
			zap.String("player", c.Name),
			zap.Int("level", c.Level),
			zap.Int("abilities_raised", len(raised)),
		)
	}
	return gained
}

// LevelUpAbility spends the player's gold to raise ability id one level.
// A rejection is a *stats.ValidationError and changes nothing.
func (e *Engine) LevelUpAbility(c *Combatant, id ability.ID) (int, error) {
	p := c.PlayerRole()
	if p == nil {
		return 0, fmt.Errorf("%w: only players level abilities", ErrInvalidCombatant)
	}
	def, err := e.abilities.Lookup(c.Abilities, id)
	if err != nil {
		return 0, err
	}
	spent, err := ability.LevelUp(c.Abilities, def, p.Gold)
	if err != nil {
		return 0, err
	}
	p.Gold -= spent
	return spent, nil
}

// Rest restores fraction of c's max health outside combat, clamped to the
// max. A fallen combatant does not recover. It returns the health restored.
//
// Precondition: fraction is in [0, 1].
func (e *Engine) Rest(c *Combatant, fraction float64) (int, error) {
	if fraction < 0 || fraction > 1 {
		return 0, fmt.Errorf("rest fraction must be in [0, 1], got %v", fraction)
	}
	healed := c.heal(int(float64(c.MaxHealth()) * fraction))
	e.logger.Debug("rested",
		zap.String("combatant", c.Name),
		zap.Int("healed", healed),
		zap.Int("health", c.Health()),
	)
	return healed, nil
}

// grantRewards computes and pays out the victory reward. The narrator may
// suggest amounts; they are clamped around the base reward.
func (e *Engine) grantRewards(ctx context.Context, enc *Encounter) *Rewards {
	baseXP, baseGold := BaseRewards(enc.Enemy)
	res := e.narrate(ctx, enc, narrative.KindVictory, baseXP, baseGold)
	r := &Rewards{
		XP:        ClampReward(res.XP, baseXP, e.rules.RewardFloor, e.rules.RewardCeil),
		Gold:      ClampReward(res.Gold, baseGold, e.rules.RewardFloor, e.rules.RewardCeil),
		Narrative: res.Text,
		Fallback:  res.Fallback,
	}
	p := enc.Player.PlayerRole()
	p.Gold += r.Gold
	r.LevelsGained = e.AwardXP(enc.Player, r.XP)
	if r.LevelsGained > 0 {
		lv := e.narrate(ctx, enc, narrative.KindLevelUp, 0, 0)
		enc.emit(Event{Kind: EventLevelUp, ActorID: enc.Player.ID, Amount: enc.Player.Level, Narrative: lv.Text})
	}
	e.logger.Info("rewards granted",
		zap.String("encounter", enc.ID),
		zap.Int("xp", r.XP),
		zap.Int("gold", r.Gold),
		zap.Int("levels", r.LevelsGained),
		zap.Bool("fallback", r.Fallback),
	)
	return r
}
