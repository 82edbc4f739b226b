package combat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/hazard"
	"github.com/cory-johannsen/delve/internal/narrative"
)

// endOfTurn runs the fixed end-of-turn pipeline over every living
// participant, one step at a time:
//
//  1. hazard tick: hazard effects refreshed, hazard damage computed, timed
//     hazards decremented and cleared
//  2. status-effect tick: hazard and effect damage summed and applied once,
//     then healing only if the combatant survived, then resource drain
//  3. sustained-ability tick
//  4. cooldown decrement
//  5. resource regeneration
//  6. combo decay
//
// turn_end triggers fire after the pipeline.
func (e *Engine) endOfTurn(enc *Encounter) {
	parts := enc.participants()

	hazardDamage := make(map[*Combatant]int, len(parts))
	for _, c := range parts {
		if c.Alive() {
			hazardDamage[c] = e.applyRoomHazards(enc, c)
		}
	}
	for _, h := range enc.Room.Tick(enc.effectSets()...) {
		enc.emit(Event{Kind: EventHazard, Narrative: fmt.Sprintf("The %s dissipates.", h.Name)})
	}

	for _, c := range parts {
		if !c.Alive() {
			continue
		}
		tr := c.Effects.Tick()
		for _, text := range tr.Narratives {
			enc.emit(Event{Kind: EventTick, TargetID: c.ID, Narrative: text})
		}
		if hd := hazardDamage[c]; hd > 0 {
			enc.emit(Event{Kind: EventHazard, TargetID: c.ID, Amount: hd,
				Narrative: fmt.Sprintf("The room's hazards deal %d damage to %s.", hd, c.Name)})
		}
		total := hazardDamage[c] + tr.Damage
		dealt := c.takeDamage(total)
		e.logger.Debug("end of turn damage",
			zap.String("combatant", c.Name),
			zap.Int("hazard", hazardDamage[c]),
			zap.Int("effects", tr.Damage),
			zap.Int("applied", dealt),
		)
		if !c.Alive() {
			e.kill(enc, e.killerOf(enc, c), c, 0)
			continue
		}
		if healed := c.heal(tr.Heal); healed > 0 {
			enc.emit(Event{Kind: EventHeal, TargetID: c.ID, Amount: healed,
				Narrative: fmt.Sprintf("%s recovers %d health.", c.Name, healed)})
		}
		c.Resource.Drain(tr.ResourceDrain)
	}

	for _, c := range parts {
		if !c.Alive() {
			continue
		}
		for _, inst := range c.Sustained {
			pools, rep := e.sustained.ProcessTurn(inst, c.pools(), c.Effects)
			c.setPools(pools)
			if !rep.Deactivated && rep.ResourceSpent == 0 && rep.HealthSpent == 0 && rep.Healed == 0 && rep.EnemyDamage == 0 {
				continue
			}
			enc.emit(Event{Kind: EventSustained, ActorID: c.ID, Amount: rep.EnemyDamage, Narrative: rep.Narrative})
			if rep.EnemyDamage > 0 {
				e.dealDamage(enc, c, enc.opponentOf(c), rep.EnemyDamage, 0, false, inst.Def.Name)
			}
		}
	}

	for _, c := range parts {
		c.Abilities.TickCooldowns()
	}

	for _, c := range parts {
		if !c.Alive() {
			continue
		}
		if n := c.Resource.Restore(c.RegenPerTurn); n > 0 {
			enc.emit(Event{Kind: EventRegen, ActorID: c.ID, Amount: n,
				Narrative: fmt.Sprintf("%s regains %d %s.", c.Name, n, c.Resource.Type)})
		}
	}

	for _, c := range parts {
		active := c.Combo.Active
		if combo.Tick(&c.Combo) {
			enc.emit(Event{Kind: EventCombo, ActorID: c.ID, Narrative: fmt.Sprintf("%s's %s chain fades.", c.Name, active)})
		}
	}

	for _, c := range parts {
		if c.Alive() {
			e.fire(enc, c, enc.opponentOf(c), effect.TurnEnd, 0, 0)
		}
	}
	e.settle(enc)
}

// killerOf names who is credited with c dying outside an attack: the
// opponent, when it is still standing.
func (e *Engine) killerOf(enc *Encounter, c *Combatant) *Combatant {
	opp := enc.opponentOf(c)
	if opp == nil || !opp.Alive() {
		return nil
	}
	return opp
}

// settle enforces combatant invariants after a mutation pass and removes
// fallen companions. Health above a shrunken max is trimmed silently;
// negative values are counted as violations.
func (e *Engine) settle(enc *Encounter) {
	for _, c := range []*Combatant{enc.Player, enc.Enemy} {
		if c != nil {
			e.enforce(enc, c)
		}
	}
	for _, c := range enc.Companions {
		e.enforce(enc, c)
	}
	enc.removeDeadCompanions()
}

func (e *Engine) enforce(enc *Encounter, c *Combatant) {
	if maxHP := c.MaxHealth(); c.Base.Health > maxHP {
		c.Base.Health = maxHP
	}
	if c.Base.Health < 0 {
		e.violation(enc, c, "health", c.Base.Health)
		c.Base.Health = 0
	}
	if c.Resource.Current < 0 || c.Resource.Current > c.Resource.Max {
		e.violation(enc, c, "resource", c.Resource.Current)
		c.Resource.Current = max(0, min(c.Resource.Current, c.Resource.Max))
	}
	for id, cd := range c.Abilities.Cooldowns {
		if cd < 0 {
			e.violation(enc, c, "cooldown:"+string(id), cd)
			c.Abilities.SetCooldown(id, 0)
		}
	}
}

func (e *Engine) violation(enc *Encounter, c *Combatant, field string, value int) {
	enc.InvariantViolations++
	e.logger.Error("combat invariant violated",
		zap.String("encounter", enc.ID),
		zap.String("combatant", c.Name),
		zap.String("field", field),
		zap.Int("value", value),
	)
}

// conclude runs the win/loss check. Defeat takes precedence when both sides
// fall in the same turn. With advance set, a fight still in progress moves
// on to the next player turn.
func (e *Engine) conclude(ctx context.Context, enc *Encounter, advance bool) {
	switch {
	case !enc.Player.Alive():
		enc.Phase = PhaseDefeat
		e.endCombat(enc)
		res := e.narrate(ctx, enc, narrative.KindDefeat, 0, 0)
		enc.emit(Event{Kind: EventDefeat, ActorID: enc.Enemy.ID, TargetID: enc.Player.ID, Narrative: res.Text})
	case !enc.Enemy.Alive():
		enc.Phase = PhaseVictory
		e.endCombat(enc)
		enc.Rewards = e.grantRewards(ctx, enc)
		enc.emit(Event{Kind: EventVictory, ActorID: enc.Player.ID, TargetID: enc.Enemy.ID,
			Amount: enc.Rewards.XP, Narrative: enc.Rewards.Narrative})
	case advance:
		enc.Turn++
		enc.Phase = PhasePlayerTurn
		return
	default:
		return
	}
	e.logger.Info("encounter ended",
		zap.String("encounter", enc.ID),
		zap.String("phase", enc.Phase.String()),
		zap.Int("turn", enc.Turn),
		zap.Int("invariant_violations", enc.InvariantViolations),
	)
}

// endCombat fires combat_end for everyone still in the fight, the fallen
// player included, then settles. The phase must already be terminal.
func (e *Engine) endCombat(enc *Encounter) {
	for _, c := range enc.participants() {
		e.fire(enc, c, enc.opponentOf(c), effect.CombatEnd, 0, 0)
	}
	e.settle(enc)
}

// narrate asks the narrator about enc's outcome, falling back to the
// deterministic text when no narrator is configured.
func (e *Engine) narrate(ctx context.Context, enc *Encounter, kind narrative.Kind, xp, gold int) narrative.Result {
	req := narrative.Request{
		Kind:      kind,
		Subject:   enc.Enemy.Name,
		Floor:     enc.Floor,
		Level:     enc.Player.Level,
		Health:    enc.Player.Health(),
		MaxHealth: enc.Player.MaxHealth(),
		BaseXP:    xp,
		BaseGold:  gold,
	}
	if e.narrator == nil {
		return narrative.Fallback(req)
	}
	return e.narrator.Enrich(ctx, req)
}

// EnterRoom moves player from one room to another outside combat: the old
// room's hazards and their effects are cleared, the new room's hazard effects
// applied, and room_enter triggers fired. from may be nil.
func (e *Engine) EnterRoom(player *Combatant, from, to *hazard.Room) []Event {
	scratch := &Encounter{Player: player, Room: to, guard: effect.NewGuard()}
	e.beginReport(scratch)
	if from != nil {
		from.Clear(player.Effects)
	}
	if to != nil {
		e.applyRoomHazards(scratch, player)
		for _, a := range to.Hazards {
			scratch.emit(Event{Kind: EventHazard, TargetID: player.ID,
				Narrative: fmt.Sprintf("%s is here.", a.Def.Name)})
		}
	}
	e.fire(scratch, player, nil, effect.RoomEnter, 0, 0)
	e.settle(scratch)
	return e.finishReport(scratch).Events
}
