package class_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/delve/internal/game/class"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/game/sustained"
)

const classesYAML = `
classes:
  - id: mage
    name: Mage
    resource: mana
    resource_max: 50
    regen_per_turn: 5
    health: 80
    attack: 8
    defense: 5
    spell_power: 14
    crit_chance: 0.05
    growth: {max_health: 8, attack: 1, defense: 1, spell_power: 3, resource: 5}
    abilities: [fireball, frost_nova]
    sustained: [arcane_shield]
    starting_gold: 10
  - id: berserker
    name: Berserker
    resource: rage
    resource_max: 100
    start_empty: true
    health: 120
    attack: 18
    defense: 8
`

func sustainedRegistry() *sustained.Registry {
	reg := sustained.NewRegistry()
	reg.Register(&sustained.Def{ID: "arcane_shield", Name: "Arcane Shield", ConstantEffect: "shielded"})
	return reg
}

func load(t *testing.T) *class.Registry {
	t.Helper()
	reg, err := class.LoadFS(fstest.MapFS{"classes/core.yaml": {Data: []byte(classesYAML)}}, "classes")
	require.NoError(t, err)
	return reg
}

func TestLoadFS(t *testing.T) {
	reg := load(t)
	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "berserker", all[0].ID)
	assert.Equal(t, "mage", all[1].ID)

	_, err := class.LoadFS(fstest.MapFS{"c/x.yaml": {Data: []byte("classes:\n  - id: x\n    name: X\n    resource: ki\n    health: 1\n")}}, "c")
	assert.Error(t, err)
	_, err = class.LoadFS(fstest.MapFS{"c/x.yaml": {Data: []byte("classes:\n  - id: x\n    hp: 3\n")}}, "c")
	assert.Error(t, err, "unknown fields are rejected")
}

func TestNewPlayer_Mage(t *testing.T) {
	mage, ok := load(t).Get("mage")
	require.True(t, ok)

	p, err := mage.NewPlayer("Aria", sustainedRegistry())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Aria", p.Name)
	assert.Equal(t, combat.KindPlayer, p.Kind())
	assert.Equal(t, "mage", p.ClassID)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 80, p.Health())
	assert.Equal(t, 14, p.Base.SpellPower)
	assert.Equal(t, 5, p.RegenPerTurn)
	assert.Equal(t, stats.Resource{Type: stats.Mana, Current: 50, Max: 50}, p.Resource)
	assert.True(t, p.Abilities.Knows("frost_nova"))
	require.Len(t, p.Sustained, 1)
	assert.False(t, p.Sustained[0].Active)
	assert.Equal(t, 10, p.PlayerRole().Gold)
	assert.Equal(t, 3, p.PlayerRole().Growth.SpellPower)
}

func TestNewPlayer_StartEmpty(t *testing.T) {
	b, ok := load(t).Get("berserker")
	require.True(t, ok)
	p, err := b.NewPlayer("Brak", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Resource.Current)
	assert.Equal(t, 100, p.Resource.Max)
}

func TestNewPlayer_UnknownSustained(t *testing.T) {
	mage, _ := load(t).Get("mage")
	_, err := mage.NewPlayer("Aria", sustained.NewRegistry())
	assert.Error(t, err)
}

func TestRegistry_RegisterPanicsOnEmptyID(t *testing.T) {
	assert.Panics(t, func() { class.NewRegistry().Register(&class.Def{}) })
}

func TestProperty_NewPlayerWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := &class.Def{
			ID: "x", Name: "X", Resource: stats.Energy,
			ResourceMax: rapid.IntRange(0, 200).Draw(rt, "max"),
			StartEmpty:  rapid.Bool().Draw(rt, "empty"),
			Health:      rapid.IntRange(1, 500).Draw(rt, "health"),
		}
		require.NoError(rt, d.Validate())
		p, err := d.NewPlayer("P", nil)
		require.NoError(rt, err)
		assert.True(rt, p.Alive())
		assert.GreaterOrEqual(rt, p.Resource.Current, 0)
		assert.LessOrEqual(rt, p.Resource.Current, p.Resource.Max)
	})
}
