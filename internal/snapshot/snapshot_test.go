package snapshot_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/game/sustained"
	"github.com/cory-johannsen/delve/internal/snapshot"
)

func richPlayer(t *testing.T) *combat.Combatant {
	t.Helper()
	fx := effect.NewSet()
	_, err := fx.Apply(effect.NewInstance(&effect.Def{
		ID: "poison", Name: "Poison", Type: effect.Debuff, Duration: 3,
		Stacking: effect.Stack, MaxStacks: 3, Tick: effect.TickEffect{Damage: 4},
	}, effect.Source{Type: effect.SourceAbility, ID: "venom"}))
	require.NoError(t, err)
	shield, err := fx.Apply(effect.NewInstance(&effect.Def{
		ID: sustained.EffectID("arcane_shield"), Name: "Shielded", Type: effect.Buff, Duration: effect.Permanent,
		Stacking: effect.Refresh, Modifiers: stats.Modifiers{Defense: 6},
		Triggers: []effect.TriggerDef{{On: effect.OnDamageTaken, Behavior: effect.ReflectDamage, Ratio: 0.25}},
	}, sustained.Source("arcane_shield")))
	require.NoError(t, err)

	book := ability.NewBook("fireball", "frost_nova")
	book.SetCooldown("fireball", 2)
	book.SetLevel("frost_nova", 3)

	inst := sustained.NewInstance(&sustained.Def{ID: "arcane_shield", Name: "Arcane Shield",
		ResourceType: stats.Mana, ActivationCost: 10, ConstantEffect: "shielded",
		Tick: sustained.TickCost{ResourceDrain: 2}})
	inst.Active = true
	inst.EffectInstanceID = shield.InstanceID

	return &combat.Combatant{
		ID: "p1", Name: "Aria",
		Role:         &combat.Player{XP: 140, Gold: 33, Growth: combat.Growth{MaxHealth: 8, SpellPower: 3}},
		Level:        4,
		ClassID:      "mage",
		Tags:         []string{"human"},
		Base:         stats.Stats{Health: 71, MaxHealth: 104, Attack: 11, Defense: 8, SpellPower: 23, CritChance: 0.05},
		Equipment:    []stats.Equipment{{ID: "wand", Name: "Wand", Slot: "hand", Bonus: stats.Modifiers{SpellPower: 2}}},
		Resource:     stats.Resource{Type: stats.Mana, Current: 17, Max: 65},
		RegenPerTurn: 5,
		Effects:      fx,
		Abilities:    book,
		Sustained:    []*sustained.Instance{inst},
		Combo:        combo.State{Active: "inferno", Stacks: 1, Step: 1, DecayTimer: 2},
		Stance:       combat.Defensive,
	}
}

func TestRoundTrip_Player(t *testing.T) {
	orig := richPlayer(t)
	data, err := snapshot.Serialize(orig)
	require.NoError(t, err)

	got, err := snapshot.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
	assert.Equal(t, 2, got.Abilities.Cooldown("fireball"))
	assert.Equal(t, 3, got.Abilities.Level("frost_nova"))
	assert.Equal(t, 1, got.Abilities.Level("fireball"), "missing level means 1")
	assert.Equal(t, orig.Effective(), got.Effective())
}

func TestRoundTrip_Boss(t *testing.T) {
	orig := &combat.Combatant{
		ID: "b1", Name: "Warden", Level: 9,
		Role: &combat.Boss{Enemy: combat.Enemy{Floor: 5, Theme: "crypt", TemplateID: "warden", AIDomain: "warden"},
			EnrageBelow: 0.3, EnrageEffect: "frenzy", Enraged: true},
		Base:      stats.Stats{Health: 90, MaxHealth: 300, Attack: 30, Defense: 20},
		Effects:   effect.NewSet(),
		Abilities: ability.NewBook(),
		Stance:    combat.Aggressive,
	}
	data, err := snapshot.Serialize(orig)
	require.NoError(t, err)
	got, err := snapshot.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
	assert.Equal(t, combat.KindBoss, got.Kind())
}

func TestDeserialize_Rejects(t *testing.T) {
	_, err := snapshot.Deserialize([]byte(`{`))
	assert.Error(t, err)

	_, err = snapshot.Deserialize([]byte(`{"version": 99, "kind": "player"}`))
	assert.True(t, errors.Is(err, snapshot.ErrVersion))

	_, err = snapshot.Deserialize([]byte(`{"version": 1, "kind": "dragon"}`))
	assert.Error(t, err)
}

func TestDeserialize_FillsNilCollections(t *testing.T) {
	c, err := snapshot.Deserialize([]byte(`{"version": 1, "id": "c1", "kind": "companion", "role": {"owner_id": "p1"}}`))
	require.NoError(t, err)
	require.NotNil(t, c.Effects)
	require.NotNil(t, c.Abilities)
	assert.Equal(t, "p1", c.Role.(*combat.Companion).OwnerID)
}

func TestSnapshot_DocumentShape(t *testing.T) {
	data, err := snapshot.Serialize(richPlayer(t))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "player", doc["kind"])
	assert.Equal(t, float64(snapshot.Version), doc["version"])
	abilities := doc["abilities"].(map[string]any)
	assert.Equal(t, map[string]any{"fireball": float64(2)}, abilities["cooldowns"])
}

func TestProperty_RoundTripPreservesState(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxHealth := rapid.IntRange(1, 1000).Draw(rt, "max_health")
		maxRes := rapid.IntRange(0, 200).Draw(rt, "max_res")
		book := ability.NewBook("a", "b")
		book.SetCooldown("a", rapid.IntRange(0, 5).Draw(rt, "cd"))
		book.SetLevel("b", rapid.IntRange(1, 5).Draw(rt, "lvl"))
		fx := effect.NewSet()
		if rapid.Bool().Draw(rt, "effect") {
			_, err := fx.Apply(effect.NewInstance(&effect.Def{
				ID: "e", Name: "E", Type: effect.Buff,
				Duration: rapid.IntRange(1, 9).Draw(rt, "dur"), Stacking: effect.Refresh,
			}, effect.Source{Type: effect.SourceHazard, ID: "h"}))
			require.NoError(rt, err)
		}
		orig := &combat.Combatant{
			ID: "x", Name: "X", Role: &combat.Enemy{Floor: rapid.IntRange(1, 20).Draw(rt, "floor")},
			Level:     rapid.IntRange(1, 50).Draw(rt, "level"),
			Base:      stats.Stats{Health: rapid.IntRange(0, maxHealth).Draw(rt, "health"), MaxHealth: maxHealth},
			Resource:  stats.Resource{Type: stats.Rage, Current: rapid.IntRange(0, maxRes).Draw(rt, "res"), Max: maxRes},
			Effects:   fx,
			Abilities: book,
			Stance:    rapid.SampledFrom([]combat.Stance{combat.Balanced, combat.Aggressive, combat.Defensive}).Draw(rt, "stance"),
		}
		data, err := snapshot.Serialize(orig)
		require.NoError(rt, err)
		got, err := snapshot.Deserialize(data)
		require.NoError(rt, err)
		assert.Equal(rt, orig, got)
	})
}
