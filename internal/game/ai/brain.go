package ai

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
)

// Brain is a combat.Brain that plans enemy turns with the HTN domain named by
// the enemy's AIDomain. Enemies without a registered domain attack.
type Brain struct {
	registry  *Registry
	abilities *ability.Registry
	logger    *zap.Logger
}

// NewBrain creates a Brain.
//
// Precondition: registry and logger must be non-nil; abilities may be nil, in
// which case no ability is ever considered ready.
func NewBrain(registry *Registry, abilities *ability.Registry, logger *zap.Logger) *Brain {
	if registry == nil {
		panic("ai.NewBrain: registry must not be nil")
	}
	if logger == nil {
		panic("ai.NewBrain: logger must not be nil")
	}
	return &Brain{registry: registry, abilities: abilities, logger: logger}
}

// Choose implements combat.Brain. The first planned action that can be
// carried out now wins; an ability counts only when it is ready.
//
// Postcondition: never returns ActionFlee or ActionUnknown.
func (b *Brain) Choose(enc *combat.Encounter, self *combat.Combatant) combat.Action {
	domainID := domainOf(self)
	planner, ok := b.registry.PlannerFor(domainID)
	if !ok {
		if domainID != "" {
			b.logger.Debug("ai: no planner for domain", zap.String("domain", domainID))
		}
		return combat.Action{Type: combat.ActionAttack}
	}

	ws := BuildWorldState(enc, self, b.abilities)
	plan, err := planner.Plan(ws)
	if err != nil {
		b.logger.Warn("ai: planning failed", zap.String("domain", domainID), zap.Error(err))
		return combat.Action{Type: combat.ActionAttack}
	}
	for _, step := range plan {
		switch step.Action {
		case OpAttack:
			return combat.Action{Type: combat.ActionAttack}
		case OpPass:
			return combat.Action{Type: combat.ActionPass}
		case OpAbility:
			id := ability.ID(step.Ability)
			if ws.Self.IsReady(id) {
				b.logger.Debug("ai: chose ability",
					zap.String("enemy", self.Name),
					zap.String("operator", step.OperatorID),
					zap.String("ability", step.Ability),
				)
				return combat.Action{Type: combat.ActionAbility, Ability: id}
			}
		}
	}
	return combat.Action{Type: combat.ActionAttack}
}

func domainOf(c *combat.Combatant) string {
	switch r := c.Role.(type) {
	case *combat.Enemy:
		return r.AIDomain
	case *combat.Boss:
		return r.AIDomain
	default:
		return ""
	}
}
