package combat

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/hazard"
	"github.com/cory-johannsen/delve/internal/narrative"
)

// BaseDamage is max(1, attack - floor(defense × factor)).
//
// Postcondition: Returns >= 1.
func BaseDamage(attack, defense int, factor float64) int {
	return max(1, attack-int(math.Floor(float64(defense)*factor)))
}

// AttackRoll is a resolved basic attack before it is applied.
type AttackRoll struct {
	Base   int
	Stance int
	Varied int
	Damage int
	Crit   bool
	Dodged bool
}

// rollAttack computes att's basic attack against def: base damage from
// effective attack against stance-adjusted effective defense, plus the
// attacker's stance modifier and variance, floored at 1, then crit and dodge.
func (e *Engine) rollAttack(att, def *Combatant) AttackRoll {
	as, ds := att.Effective(), def.Effective()
	r := AttackRoll{Base: BaseDamage(as.Attack, def.Stance.Defense(ds.Defense), e.rules.DefenseFactor)}
	r.Stance = att.Stance.DamageModifier(r.Base)
	r.Varied = e.roller.Between("variance", -e.rules.Variance, e.rules.Variance)
	r.Damage = max(1, r.Base+r.Stance+r.Varied)
	r.Crit = e.roller.Chance("crit", as.CritChance)
	if r.Crit {
		r.Damage = e.critical(r.Damage)
	}
	r.Dodged = e.roller.Chance("dodge", ds.DodgeChance)
	return r
}

func (e *Engine) critical(dmg int) int {
	return max(1, int(math.Floor(float64(dmg)*e.rules.CritMultiplier)))
}

// basicAttack resolves att attacking def. Trigger order is on_attack, then
// on_critical_hit, on_damage_dealt, on_damage_taken and on_kill. A dodge
// voids the damage and fires only on_attack.
func (e *Engine) basicAttack(enc *Encounter, att, def *Combatant, depth int) {
	if att == nil || def == nil || !att.Alive() || !def.Alive() {
		return
	}
	r := e.rollAttack(att, def)
	e.logger.Debug("attack resolved",
		zap.String("attacker", att.Name),
		zap.String("defender", def.Name),
		zap.Int("base", r.Base),
		zap.Int("stance", r.Stance),
		zap.Int("variance", r.Varied),
		zap.Int("damage", r.Damage),
		zap.Bool("crit", r.Crit),
		zap.Bool("dodged", r.Dodged),
	)
	e.fire(enc, att, def, effect.OnAttack, r.Damage, depth)
	if r.Dodged {
		enc.emit(Event{Kind: EventDodge, ActorID: att.ID, TargetID: def.ID,
			Narrative: fmt.Sprintf("%s dodges %s's attack.", def.Name, att.Name)})
		return
	}
	if r.Crit {
		e.fire(enc, att, def, effect.OnCriticalHit, r.Damage, depth)
	}
	e.dealDamage(enc, att, def, r.Damage, depth, r.Crit, "")
}

// useAbility executes id for c. Ability damage ignores the target's defense
// and cannot be dodged, but can crit; the user's stance and combo multiplier
// apply.
func (e *Engine) useAbility(enc *Encounter, c *Combatant, id ability.ID) error {
	res, err := e.abilities.Execute(c.caster(), id)
	if err != nil {
		return err
	}
	opp := enc.opponentOf(c)
	ev := Event{Kind: EventAbility, ActorID: c.ID, Narrative: res.Narrative}
	if opp != nil {
		ev.TargetID = opp.ID
	}
	enc.emit(ev)

	cr := combo.Check(res.Tags, &c.Combo, e.combos)
	if cr.Event != combo.EventNone {
		enc.emit(Event{Kind: EventCombo, ActorID: c.ID, Amount: cr.Stacks, Narrative: cr.Narrative})
	}

	if res.Healing > 0 {
		if healed := c.heal(res.Healing); healed > 0 {
			enc.emit(Event{Kind: EventHeal, ActorID: c.ID, TargetID: c.ID, Amount: healed,
				Narrative: fmt.Sprintf("%s recovers %d health.", c.Name, healed)})
		}
	}
	for _, inst := range res.SelfEffects {
		e.applyEffect(enc, c, inst)
	}
	target := opp
	if res.Target == ability.TargetSelf {
		target = c
	}
	for _, inst := range res.TargetEffects {
		e.applyEffect(enc, target, inst)
	}
	if fin := cr.Finisher; fin != nil && fin.Effect != "" {
		finTarget := opp
		if fin.Target == "self" {
			finTarget = c
		}
		inst, err := e.effects.Instantiate(fin.Effect, effect.Source{Type: effect.SourceAbility, ID: string(cr.Combo)})
		if err != nil {
			e.logger.Warn("combo finisher effect", zap.String("combo", string(cr.Combo)), zap.Error(err))
		} else {
			e.applyEffect(enc, finTarget, inst)
		}
	}

	if res.Damage <= 0 || res.Target != ability.TargetEnemy || opp == nil || !opp.Alive() {
		return nil
	}
	dmg := res.Damage + c.Stance.DamageModifier(res.Damage)
	dmg = int(math.Floor(float64(dmg) * cr.Multiplier))
	if cr.Finisher != nil {
		dmg += cr.Finisher.BonusDamage
	}
	dmg = max(1, dmg)
	crit := e.roller.Chance("crit", c.Effective().CritChance)
	if crit {
		dmg = e.critical(dmg)
	}
	e.fire(enc, c, opp, effect.OnAttack, dmg, 0)
	if crit {
		e.fire(enc, c, opp, effect.OnCriticalHit, dmg, 0)
	}
	e.dealDamage(enc, c, opp, dmg, 0, crit, res.Name)
	return nil
}

// enemyAction carries out a Brain's choice, falling back to a basic attack
// when the choice is invalid.
func (e *Engine) enemyAction(enc *Encounter, self *Combatant, a Action) {
	target := enc.opponentOf(self)
	switch a.Type {
	case ActionAbility:
		if err := e.useAbility(enc, self, a.Ability); err != nil {
			e.logger.Info("enemy action fell back",
				zap.String("enemy", self.Name),
				zap.String("ability", string(a.Ability)),
				zap.Error(err),
			)
			e.basicAttack(enc, self, target, 0)
		}
	case ActionPass:
		enc.emit(Event{Kind: EventPass, ActorID: self.ID, Narrative: fmt.Sprintf("%s hesitates.", self.Name)})
	case ActionAttack:
		e.basicAttack(enc, self, target, 0)
	default:
		e.logger.Info("enemy action fell back",
			zap.String("enemy", self.Name),
			zap.String("action", a.Type.String()),
		)
		e.basicAttack(enc, self, target, 0)
	}
}

// companionActions has every living companion attack the enemy.
func (e *Engine) companionActions(enc *Encounter) {
	for _, c := range enc.Companions {
		if !enc.Enemy.Alive() {
			return
		}
		if c.Alive() {
			e.basicAttack(enc, c, enc.Enemy, 0)
		}
	}
}

// FleeChance is base + perLevel × level, capped at the rules maximum
// (1 by default, so it only stops the chance exceeding certainty).
func FleeChance(r Rules, level int) float64 {
	return math.Min(r.FleeMaxChance, r.FleeBaseChance+r.FleePerLevel*float64(level))
}

// attemptFlee rolls the player's escape. A hazard that disables fleeing makes
// it fail without a roll. It reports whether the player escaped.
func (e *Engine) attemptFlee(ctx context.Context, enc *Encounter) bool {
	p := enc.Player
	if enc.Room.FleeBlocked() {
		enc.emit(Event{Kind: EventFlee, ActorID: p.ID, Narrative: "The hazard blocks every escape route."})
		return false
	}
	if !e.roller.Chance("flee", FleeChance(e.rules, p.Level)) {
		enc.emit(Event{Kind: EventFlee, ActorID: p.ID, Narrative: fmt.Sprintf("%s fails to escape.", p.Name)})
		return false
	}
	enc.Phase = PhaseFled
	res := e.narrate(ctx, enc, narrative.KindFlee, 0, 0)
	enc.emit(Event{Kind: EventFlee, ActorID: p.ID, Amount: 1, Narrative: res.Text})
	e.endCombat(enc)
	e.logger.Info("encounter ended",
		zap.String("encounter", enc.ID),
		zap.String("phase", enc.Phase.String()),
		zap.Int("turn", enc.Turn),
	)
	return true
}

// fire dispatches trigger t on owner's effects and applies every outcome.
// other is the counterpart damage outcomes land on; it may be nil.
func (e *Engine) fire(enc *Encounter, owner, other *Combatant, t effect.Trigger, amount, depth int) {
	if owner == nil {
		return
	}
	ev := enc.guard.Event(t, amount, depth)
	outcomes := e.dispatcher.Dispatch(owner.Effects, ev, enc.guard)
	enc.CappedTriggers = enc.guard.Capped()
	for _, o := range outcomes {
		e.applyOutcome(enc, owner, other, o)
	}
}

// applyOutcome applies one trigger outcome. Damage it deals raises events one
// level deeper than the event that fired it.
func (e *Engine) applyOutcome(enc *Encounter, owner, other *Combatant, o effect.Outcome) {
	enc.emit(Event{Kind: EventTrigger, ActorID: owner.ID, Narrative: o.Narrative})
	if o.Heal > 0 {
		owner.heal(o.Heal)
	}
	if o.Restore > 0 {
		owner.Resource.Restore(o.Restore)
	}
	if o.Damage > 0 && other != nil {
		e.dealDamage(enc, owner, other, o.Damage, o.Depth+1, false, o.EffectName)
	}
	if o.ApplyEffect != "" {
		target := other
		if o.ApplyTo == "self" {
			target = owner
		}
		if target == nil {
			return
		}
		inst, err := e.effects.Instantiate(o.ApplyEffect, effect.Source{Type: effect.SourceEnvironment, ID: o.EffectID})
		if err != nil {
			e.logger.Warn("trigger effect", zap.String("effect", o.ApplyEffect), zap.Error(err))
			return
		}
		e.applyEffect(enc, target, inst)
	}
}

// dealDamage applies amount to dst and fires on_damage_dealt for src,
// on_damage_taken for dst and, if dst dies, on_kill for src. It returns the
// health actually removed.
func (e *Engine) dealDamage(enc *Encounter, src, dst *Combatant, amount, depth int, crit bool, via string) int {
	if dst == nil || !dst.Alive() || amount <= 0 {
		return 0
	}
	dealt := dst.takeDamage(amount)
	text := fmt.Sprintf("%s hits %s for %d.", src.Name, dst.Name, dealt)
	if via != "" {
		text = fmt.Sprintf("%s's %s hits %s for %d.", src.Name, via, dst.Name, dealt)
	}
	if crit {
		text += " Critical hit!"
	}
	enc.emit(Event{Kind: EventAttack, ActorID: src.ID, TargetID: dst.ID, Amount: dealt, Crit: crit, Narrative: text})
	e.fire(enc, src, dst, effect.OnDamageDealt, dealt, depth)
	e.fire(enc, dst, src, effect.OnDamageTaken, dealt, depth)
	if !dst.Alive() {
		e.kill(enc, src, dst, depth)
		return dealt
	}
	e.checkEnrage(enc, dst)
	return dealt
}

// kill reports victim's death and fires killer's on_kill. killer may be nil.
func (e *Engine) kill(enc *Encounter, killer, victim *Combatant, depth int) {
	ev := Event{Kind: EventKill, TargetID: victim.ID, Narrative: fmt.Sprintf("%s falls.", victim.Name)}
	if killer != nil {
		ev.ActorID = killer.ID
	}
	enc.emit(ev)
	if killer != nil && killer.Alive() {
		e.fire(enc, killer, victim, effect.OnKill, victim.MaxHealth(), depth)
	}
}

// checkEnrage enrages a boss the first time its health drops below its
// threshold.
func (e *Engine) checkEnrage(enc *Encounter, c *Combatant) {
	boss, ok := c.Role.(*Boss)
	if !ok || boss.Enraged || !c.Alive() || boss.EnrageEffect == "" {
		return
	}
	if float64(c.Health()) >= boss.EnrageBelow*float64(c.MaxHealth()) {
		return
	}
	boss.Enraged = true
	enc.emit(Event{Kind: EventEnrage, ActorID: c.ID, Narrative: fmt.Sprintf("%s becomes enraged!", c.Name)})
	inst, err := e.effects.Instantiate(boss.EnrageEffect, effect.Source{Type: effect.SourceEnvironment, ID: "enrage"})
	if err != nil {
		e.logger.Warn("enrage effect", zap.String("boss", c.Name), zap.Error(err))
		return
	}
	e.applyEffect(enc, c, inst)
}

// applyEffect puts inst on target. The dead receive nothing.
func (e *Engine) applyEffect(enc *Encounter, target *Combatant, inst *effect.Instance) {
	if target == nil || !target.Alive() {
		return
	}
	live, err := target.Effects.Apply(inst)
	if err != nil {
		e.logger.Warn("effect rejected", zap.String("effect", inst.ID), zap.Error(err))
		return
	}
	enc.emit(Event{Kind: EventEffect, TargetID: target.ID, Amount: live.Stacks,
		Narrative: fmt.Sprintf("%s is affected by %s.", target.Name, live.Name)})
}

// applyRoomHazards pushes every room hazard's effect onto c and returns the
// hazard damage c takes this turn.
func (e *Engine) applyRoomHazards(enc *Encounter, c *Combatant) int {
	if enc.Room == nil {
		return 0
	}
	total := 0
	for _, a := range enc.Room.Hazards {
		var (
			dmg int
			err error
		)
		switch c.Role.(type) {
		case *Player, *Companion:
			dmg, err = hazard.ApplyToPlayer(a.Def, c.ClassID, c.Effects)
		case *Enemy, *Boss:
			dmg, err = hazard.ApplyToEnemy(a.Def, c.Tags, c.Effects)
		default:
			panic(fmt.Sprintf("combat: unhandled role %T", c.Role))
		}
		if err != nil {
			e.logger.Warn("hazard rejected", zap.String("hazard", a.Def.ID), zap.Error(err))
			continue
		}
		total += dmg
	}
	return total
}
