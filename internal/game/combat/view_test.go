package combat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/hazard"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

func choiceFor(v combat.View, match func(combat.Choice) bool) (combat.Choice, bool) {
	for _, c := range v.Choices {
		if match(c) {
			return c, true
		}
	}
	return combat.Choice{}, false
}

func TestView_ReportsChoices(t *testing.T) {
	f := newFixture(t, capSrc{2})
	player := newPlayer()
	player.Sustained = []*sustained.Instance{sustained.NewInstance(&sustained.Def{
		ID: "bloodpact", Name: "Blood Pact", HealthCost: 200, ConstantEffect: "rage",
	})}
	web := &hazard.Def{ID: "web", Name: "Web", Effects: hazard.Effects{FleeDisabled: true}, Duration: hazard.UntilCleared}
	enc := start(t, f, player, newEnemy(), hazard.NewRoom("r", web))

	v, err := f.eng.View(enc.ID)
	require.NoError(t, err)
	assert.Equal(t, combat.PhasePlayerTurn, v.Phase)
	assert.Equal(t, "Aria", v.Player.Name)
	require.NotNil(t, v.Enemy)
	assert.Equal(t, 60, v.Enemy.Health)
	assert.Equal(t, []string{"Web"}, v.Hazards)
	assert.True(t, v.FleeBlocked)
	assert.Len(t, v.Player.Effects, 1, "the hazard effect is visible")

	meteor, ok := choiceFor(v, func(c combat.Choice) bool { return c.Ability == "meteor" })
	require.True(t, ok)
	assert.True(t, meteor.Disabled)
	assert.Contains(t, meteor.Reason, string(stats.ReasonInsufficientResource))

	fireball, ok := choiceFor(v, func(c combat.Choice) bool { return c.Ability == "fireball" })
	require.True(t, ok)
	assert.False(t, fireball.Disabled)
	assert.Equal(t, "Fireball", fireball.Label)

	pact, ok := choiceFor(v, func(c combat.Choice) bool { return c.Sustained == "bloodpact" })
	require.True(t, ok)
	assert.Equal(t, combat.ActionToggleSustained, pact.Action)
	assert.True(t, pact.Disabled)
	assert.Contains(t, pact.Reason, string(stats.ReasonInsufficientHealth))

	flee, ok := choiceFor(v, func(c combat.Choice) bool { return c.Action == combat.ActionFlee })
	require.True(t, ok)
	assert.True(t, flee.Disabled)
}

func TestView_EverythingDisabledOnceOver(t *testing.T) {
	f := newFixture(t, capSrc{0})
	enc := start(t, f, newPlayer(), newEnemy(), nil)
	_, err := f.eng.Flee(context.Background(), enc.ID)
	require.NoError(t, err)

	v, err := f.eng.View(enc.ID)
	require.NoError(t, err)
	assert.Equal(t, combat.PhaseFled, v.Phase)
	for _, c := range v.Choices {
		assert.True(t, c.Disabled, c.Label)
	}
}

func TestView_OffersEveryOtherStance(t *testing.T) {
	f := newFixture(t, capSrc{2})
	enc := start(t, f, newPlayer(), newEnemy(), nil)

	stances := func() []combat.Stance {
		v, err := f.eng.View(enc.ID)
		require.NoError(t, err)
		var out []combat.Stance
		for _, c := range v.Choices {
			if c.Action == combat.ActionChangeStance {
				assert.False(t, c.Disabled)
				assert.Contains(t, c.Label, "stance")
				out = append(out, c.Stance)
			}
		}
		return out
	}
	assert.Equal(t, []combat.Stance{combat.Aggressive, combat.Defensive}, stances())

	_, err := f.eng.Act(context.Background(), enc.ID, combat.Action{Type: combat.ActionChangeStance, Stance: combat.Defensive})
	require.NoError(t, err)
	assert.Equal(t, combat.Defensive, enc.Player.Stance)
	assert.Equal(t, 1, enc.Turn, "changing stance is a free action")
	assert.Equal(t, []combat.Stance{combat.Balanced, combat.Aggressive}, stances())
}
