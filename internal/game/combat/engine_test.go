package combat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/combo"
	"github.com/cory-johannsen/delve/internal/game/dice"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/hazard"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/game/sustained"
	"github.com/cory-johannsen/delve/internal/narrative"
)

// capSrc returns val for every draw, capped to the draw's range.
type capSrc struct{ val int }

func (s capSrc) Intn(n int) int { return min(s.val, n-1) }

type passBrain struct{}

func (passBrain) Choose(*combat.Encounter, *combat.Combatant) combat.Action {
	return combat.Action{Type: combat.ActionPass}
}

type fixedNarrator struct{ res narrative.Result }

func (f fixedNarrator) Enrich(context.Context, narrative.Request) narrative.Result { return f.res }

type fixture struct {
	eng     *combat.Engine
	effects *effect.Registry
	logs    *observer.ObservedLogs
}

type option func(*combat.Deps)

func withBrain(b combat.Brain) option       { return func(d *combat.Deps) { d.Brain = b } }
func withNarrator(n combat.Enricher) option { return func(d *combat.Deps) { d.Narrator = n } }

func newFixture(t *testing.T, src dice.Source, opts ...option) *fixture {
	t.Helper()
	fx := effect.NewRegistry()
	for _, d := range []*effect.Def{
		{ID: "poison", Name: "Poison", Type: effect.Debuff, Duration: 3, Tick: effect.TickEffect{Damage: 8}, Stacking: effect.Stack, MaxStacks: 3},
		{ID: "regen", Name: "Regeneration", Type: effect.Buff, Duration: 3, Tick: effect.TickEffect{Heal: 10}, Stacking: effect.Refresh},
		{ID: "thorns", Name: "Thorns", Type: effect.Buff, Duration: effect.Permanent, Stacking: effect.Refresh,
			Triggers: []effect.TriggerDef{{On: effect.OnDamageTaken, Behavior: effect.ReflectDamage, Ratio: 1}}},
		{ID: "keen", Name: "Keen Eye", Type: effect.Buff, Duration: effect.Permanent, Stacking: effect.Refresh,
			Triggers: []effect.TriggerDef{{On: effect.OnAttack, Behavior: effect.RestoreResource, Amount: 1}}},
		{ID: "rage", Name: "Rage", Type: effect.Buff, Duration: effect.Permanent, Stacking: effect.Refresh,
			Modifiers: stats.Modifiers{Attack: 10}},
		{ID: "fortify", Name: "Fortify", Type: effect.Buff, Duration: effect.Permanent, Stacking: effect.Refresh,
			Modifiers: stats.Modifiers{Defense: 5}},
		{ID: "parting", Name: "Parting Gift", Type: effect.Buff, Duration: effect.Permanent, Stacking: effect.Refresh,
			Triggers: []effect.TriggerDef{{On: effect.CombatEnd, Behavior: effect.RestoreResource, Amount: 3}}},
	} {
		require.NoError(t, d.Validate())
		fx.Register(d)
	}

	abilities := ability.NewRegistry()
	for _, d := range []*ability.Def{
		{ID: "fireball", Name: "Fireball", ResourceType: stats.Mana, Cost: 10, Cooldown: 2, BaseDamage: 12,
			Tags: []string{"arcane"}, Target: ability.TargetEnemy, MaxLevel: 5, LevelCostBase: 10},
		{ID: "meteor", Name: "Meteor", ResourceType: stats.Mana, Cost: 30, BaseDamage: 40,
			Target: ability.TargetEnemy, MaxLevel: 1},
		{ID: "mend", Name: "Mend", ResourceType: stats.Mana, BaseHealing: 30, Target: ability.TargetSelf, MaxLevel: 1},
		{ID: "ember", Name: "Ember", ResourceType: stats.Mana, BaseDamage: 10, Tags: []string{"fire"},
			Target: ability.TargetEnemy, MaxLevel: 1},
	} {
		abilities.Register(d)
	}

	combos := combo.NewRegistry()
	combos.Register(&combo.Def{ID: "inferno", Name: "Inferno", Steps: []string{"fire", "fire"},
		DecayTurns: 2, BonusPerStack: 0.5, Finisher: combo.Finisher{BonusDamage: 5}})

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	deps := combat.Deps{
		Effects:   fx,
		Abilities: abilities,
		Combos:    combos,
		Roller:    dice.NewLoggedRoller(src, logger),
		Rules:     combat.DefaultRules(),
		Logger:    logger,
	}
	for _, o := range opts {
		o(&deps)
	}
	return &fixture{eng: combat.NewEngine(deps), effects: fx, logs: logs}
}

func (f *fixture) give(t *testing.T, c *combat.Combatant, id string) {
	t.Helper()
	inst, err := f.effects.Instantiate(id, effect.Source{Type: effect.SourceEnvironment, ID: "test"})
	require.NoError(t, err)
	_, err = c.Effects.Apply(inst)
	require.NoError(t, err)
}

func newPlayer() *combat.Combatant {
	return &combat.Combatant{
		ID:        "p1",
		Name:      "Aria",
		Role:      &combat.Player{Growth: combat.Growth{MaxHealth: 10, Attack: 2, Resource: 5}},
		Level:     1,
		ClassID:   "mage",
		Base:      stats.Stats{Health: 100, MaxHealth: 100, Attack: 20, Defense: 10},
		Resource:  stats.Resource{Type: stats.Mana, Current: 20, Max: 50},
		Effects:   effect.NewSet(),
		Abilities: ability.NewBook("fireball", "meteor", "mend", "ember"),
	}
}

func newEnemy() *combat.Combatant {
	return &combat.Combatant{
		ID:        "e1",
		Name:      "Goblin",
		Role:      &combat.Enemy{Floor: 2, TemplateID: "goblin"},
		Level:     3,
		Tags:      []string{"goblin"},
		Base:      stats.Stats{Health: 60, MaxHealth: 60, Attack: 20, Defense: 10},
		Effects:   effect.NewSet(),
		Abilities: ability.NewBook(),
	}
}

func start(t *testing.T, f *fixture, player, enemy *combat.Combatant, room *hazard.Room) *combat.Encounter {
	t.Helper()
	enc, _, err := f.eng.Start(context.Background(), player, enemy, nil, room)
	require.NoError(t, err)
	return enc
}

func countEvents(rep *combat.TurnReport, kind combat.EventKind, actor string) int {
	n := 0
	for _, ev := range rep.Events {
		if ev.Kind == kind && (actor == "" || ev.ActorID == actor) {
			n++
		}
	}
	return n
}

func TestStart_RejectsWrongRoles(t *testing.T) {
	f := newFixture(t, capSrc{2})
	_, _, err := f.eng.Start(context.Background(), newPlayer(), newPlayer(), nil, nil)
	assert.ErrorIs(t, err, combat.ErrInvalidCombatant)

	dead := newEnemy()
	dead.Base.Health = 0
	_, _, err = f.eng.Start(context.Background(), newPlayer(), dead, nil, nil)
	assert.ErrorIs(t, err, combat.ErrInvalidCombatant)
	assert.Equal(t, 0, f.eng.Len())
}

func TestAttack_BalancedExchange(t *testing.T) {
	f := newFixture(t, capSrc{2})
	enc := start(t, f, newPlayer(), newEnemy(), nil)
	assert.Equal(t, combat.PhasePlayerTurn, enc.Phase)

	rep, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, enc.Enemy.Health())
	assert.Equal(t, 85, enc.Player.Health())
	assert.Equal(t, 2, enc.Turn)
	assert.Equal(t, combat.PhasePlayerTurn, rep.Phase)
	assert.Equal(t, 1, countEvents(rep, combat.EventAttack, "e1"))
}

func TestAttack_StancesShiftDamageAndDefense(t *testing.T) {
	f := newFixture(t, capSrc{2})
	enc := start(t, f, newPlayer(), newEnemy(), nil)
	_, err := f.eng.ChangeStance(enc.ID, combat.Aggressive)
	require.NoError(t, err)

	_, err = f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 60-19, enc.Enemy.Health())
	assert.Equal(t, 100-17, enc.Player.Health())

	enc.Enemy.Stance = combat.Defensive
	_, err = f.eng.ChangeStance(enc.ID, combat.Balanced)
	require.NoError(t, err)
	_, err = f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 41-13, enc.Enemy.Health())

	_, err = f.eng.ChangeStance(enc.ID, "sideways")
	assert.Error(t, err)
}

func TestStart_StancePersistsAcrossEncounters(t *testing.T) {
	f := newFixture(t, capSrc{0})
	player := newPlayer()
	first := start(t, f, player, newEnemy(), nil)
	assert.Equal(t, combat.Balanced, first.Player.Stance)

	_, err := f.eng.ChangeStance(first.ID, combat.Defensive)
	require.NoError(t, err)
	player.Combo = combo.State{Active: "inferno", Stacks: 1, Step: 1, DecayTimer: 2}
	rep, err := f.eng.Flee(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, combat.PhaseFled, rep.Phase)

	second := start(t, f, player, newEnemy(), nil)
	assert.Equal(t, combat.Defensive, second.Player.Stance)
	assert.Equal(t, combo.State{}, second.Player.Combo)
}

func TestAttack_DodgeFiresOnlyOnAttack(t *testing.T) {
	f := newFixture(t, capSrc{0}, withBrain(passBrain{}))
	player, enemy := newPlayer(), newEnemy()
	enemy.Base.DodgeChance = 0.5
	f.give(t, player, "keen")
	enc := start(t, f, player, enemy, nil)

	rep, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, enc.Enemy.Health())
	assert.Equal(t, 21, enc.Player.Resource.Current)
	assert.Equal(t, 1, countEvents(rep, combat.EventDodge, "p1"))
	assert.Equal(t, 0, countEvents(rep, combat.EventAttack, "p1"))
}

func TestAttack_CriticalHit(t *testing.T) {
	f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
	player := newPlayer()
	player.Base.CritChance = 1
	enc := start(t, f, player, newEnemy(), nil)

	rep, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 60-22, enc.Enemy.Health())
	var crit bool
	for _, ev := range rep.Events {
		if ev.Kind == combat.EventAttack && ev.ActorID == "p1" {
			crit = ev.Crit
		}
	}
	assert.True(t, crit)
}

func TestUseAbility_UnaffordableChangesNothing(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, capSrc{2}, func(d *combat.Deps) { d.Logger = zap.New(core) })
	enc := start(t, f, newPlayer(), newEnemy(), nil)

	rep, err := f.eng.UseAbility(context.Background(), enc.ID, "meteor")
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.True(t, errors.Is(err, stats.ErrInsufficientResource))
	reason, ok := stats.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, stats.ReasonInsufficientResource, reason)
	assert.Equal(t, 20, enc.Player.Resource.Current)
	assert.Equal(t, 60, enc.Enemy.Health())
	assert.Equal(t, 1, enc.Turn)
	assert.Equal(t, combat.PhasePlayerTurn, enc.Phase)
	assert.Equal(t, 0, enc.Player.Abilities.Cooldown("meteor"))
	assert.Equal(t, 1, logs.FilterMessage("ability rejected").Len())
}

func TestUseAbility_PaysAndCoolsDown(t *testing.T) {
	f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
	enc := start(t, f, newPlayer(), newEnemy(), nil)

	_, err := f.eng.UseAbility(context.Background(), enc.ID, "fireball")
	require.NoError(t, err)
	assert.Equal(t, 48, enc.Enemy.Health())
	assert.Equal(t, 10, enc.Player.Resource.Current)
	assert.Equal(t, 1, enc.Player.Abilities.Cooldown("fireball"))

	_, err = f.eng.UseAbility(context.Background(), enc.ID, "fireball")
	assert.ErrorIs(t, err, stats.ErrOnCooldown)
}

func TestUseAbility_HealsSelf(t *testing.T) {
	f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
	player := newPlayer()
	player.Base.Health = 50
	enc := start(t, f, player, newEnemy(), nil)

	_, err := f.eng.UseAbility(context.Background(), enc.ID, "mend")
	require.NoError(t, err)
	assert.Equal(t, 80, enc.Player.Health())
	assert.Equal(t, 60, enc.Enemy.Health())
}

func TestUseAbility_ComboMultipliesAndFinishes(t *testing.T) {
	f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
	enc := start(t, f, newPlayer(), newEnemy(), nil)

	_, err := f.eng.UseAbility(context.Background(), enc.ID, "ember")
	require.NoError(t, err)
	assert.Equal(t, 45, enc.Enemy.Health())
	assert.Equal(t, combo.ID("inferno"), enc.Player.Combo.Active)

	rep, err := f.eng.UseAbility(context.Background(), enc.ID, "ember")
	require.NoError(t, err)
	assert.Equal(t, 20, enc.Enemy.Health())
	assert.Equal(t, combo.State{}, enc.Player.Combo)
	assert.Equal(t, 1, countEvents(rep, combat.EventCombo, "p1"))
}

func TestFlee_BlockedByHazardAlwaysFails(t *testing.T) {
	f := newFixture(t, capSrc{0})
	web := &hazard.Def{ID: "web", Name: "Web", Effects: hazard.Effects{FleeDisabled: true}, Duration: hazard.UntilCleared}
	enc := start(t, f, newPlayer(), newEnemy(), hazard.NewRoom("r1", web))

	rep, err := f.eng.Flee(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, combat.PhasePlayerTurn, enc.Phase)
	assert.Equal(t, 1, countEvents(rep, combat.EventAttack, "e1"))
	assert.Equal(t, 87, enc.Player.Health())
}

func TestFlee_FailureGrantsOneFreeAttack(t *testing.T) {
	f := newFixture(t, capSrc{9999})
	enc := start(t, f, newPlayer(), newEnemy(), nil)

	rep, err := f.eng.Flee(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, countEvents(rep, combat.EventAttack, "e1"))
	assert.Equal(t, 83, enc.Player.Health())
	assert.Equal(t, 2, enc.Turn)
}

func TestFlee_SuccessEndsEncounter(t *testing.T) {
	f := newFixture(t, capSrc{0})
	enc := start(t, f, newPlayer(), newEnemy(), nil)

	rep, err := f.eng.Flee(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, combat.PhaseFled, rep.Phase)
	assert.Equal(t, 0, countEvents(rep, combat.EventAttack, ""))
	assert.Nil(t, rep.Rewards)

	_, err = f.eng.Attack(context.Background(), enc.ID)
	assert.ErrorIs(t, err, combat.ErrNotPlayerTurn)
}

func TestFleeChance_FollowsLevelFormula(t *testing.T) {
	r := combat.DefaultRules()
	for level, want := range map[int]float64{1: 0.45, 6: 0.7, 11: 0.95, 12: 1, 15: 1, 40: 1} {
		assert.InDelta(t, want, combat.FleeChance(r, level), 1e-9, "level %d", level)
	}

	r.FleeMaxChance = 0.9
	assert.InDelta(t, 0.9, combat.FleeChance(r, 12), 1e-9)
	assert.InDelta(t, 0.85, combat.FleeChance(r, 9), 1e-9)
}

func TestFlee_HighLevelAlwaysEscapes(t *testing.T) {
	f := newFixture(t, capSrc{9999})
	player := newPlayer()
	player.Level = 12
	enc := start(t, f, player, newEnemy(), nil)

	rep, err := f.eng.Flee(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, combat.PhaseFled, rep.Phase)
	assert.Equal(t, 0, countEvents(rep, combat.EventAttack, ""))
}

func TestEndOfTurn_HealDoesNotMaskLethalDamage(t *testing.T) {
	embers := &hazard.Def{ID: "embers", Name: "Embers", DamagePerTurn: 5, Duration: hazard.UntilCleared}
	for _, tc := range []struct {
		name   string
		health int
		want   int
		phase  combat.Phase
	}{
		{name: "lethal", health: 10, want: 0, phase: combat.PhaseDefeat},
		{name: "survives then heals", health: 20, want: 17, phase: combat.PhasePlayerTurn},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
			player := newPlayer()
			player.Base.Health = tc.health
			f.give(t, player, "poison")
			f.give(t, player, "regen")
			enc := start(t, f, player, newEnemy(), hazard.NewRoom("r1", embers))

			rep, err := f.eng.Act(context.Background(), enc.ID, combat.Action{Type: combat.ActionPass})
			require.NoError(t, err)
			assert.Equal(t, tc.want, enc.Player.Health())
			assert.Equal(t, tc.phase, rep.Phase)
			if tc.phase == combat.PhaseDefeat {
				assert.Equal(t, 0, countEvents(rep, combat.EventHeal, ""))
			}
		})
	}
}

func TestTriggers_ReflectCascadeIsCapped(t *testing.T) {
	f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
	player, enemy := newPlayer(), newEnemy()
	f.give(t, player, "thorns")
	f.give(t, enemy, "thorns")
	enc := start(t, f, player, enemy, nil)

	_, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, enc.Enemy.Health())
	assert.Equal(t, 85, enc.Player.Health())
	assert.Positive(t, enc.CappedTriggers)
}

func TestVictory_GrantsBaseRewardsWithoutNarrator(t *testing.T) {
	f := newFixture(t, capSrc{2})
	enemy := newEnemy()
	enemy.Base.Health = 10
	enc := start(t, f, newPlayer(), enemy, nil)

	rep, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, combat.PhaseVictory, rep.Phase)
	require.NotNil(t, rep.Rewards)
	assert.Equal(t, 60, rep.Rewards.XP)
	assert.Equal(t, 16, rep.Rewards.Gold)
	assert.True(t, rep.Rewards.Fallback)
	assert.Equal(t, 16, enc.Player.PlayerRole().Gold)
	assert.Equal(t, 60, enc.Player.PlayerRole().XP)
	assert.Equal(t, 100, enc.Player.Health(), "a dead enemy does not act")
}

func TestVictory_NarratorSuggestionsAreClamped(t *testing.T) {
	f := newFixture(t, capSrc{2}, withNarrator(fixedNarrator{res: narrative.Result{Text: "The goblin crumples.", XP: 1000, Gold: 1}}))
	enemy := newEnemy()
	enemy.Base.Health = 10
	enc := start(t, f, newPlayer(), enemy, nil)

	rep, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	require.NotNil(t, rep.Rewards)
	assert.Equal(t, 90, rep.Rewards.XP)
	assert.Equal(t, 8, rep.Rewards.Gold)
	assert.False(t, rep.Rewards.Fallback)
	assert.Equal(t, "The goblin crumples.", rep.Rewards.Narrative)
}

func TestDefeat_TakesPrecedenceOverVictory(t *testing.T) {
	f := newFixture(t, capSrc{2})
	player, enemy := newPlayer(), newEnemy()
	player.Base.Health = 5
	enemy.Base.Health = 15
	f.give(t, player, "poison")
	enc := start(t, f, player, enemy, nil)

	rep, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.False(t, enc.Enemy.Alive())
	assert.False(t, enc.Player.Alive())
	assert.Equal(t, combat.PhaseDefeat, rep.Phase)
	assert.Nil(t, rep.Rewards)
}

func TestCombatEnd_FiresForEveryParticipantOnAnyEnding(t *testing.T) {
	for _, tc := range []struct {
		name  string
		src   capSrc
		setup func(player, enemy *combat.Combatant)
		act   func(f *fixture, id string) (*combat.TurnReport, error)
		phase combat.Phase
	}{
		{
			name:  "defeat",
			src:   capSrc{2},
			setup: func(player, _ *combat.Combatant) { player.Base.Health = 5 },
			act: func(f *fixture, id string) (*combat.TurnReport, error) {
				return f.eng.Attack(context.Background(), id)
			},
			phase: combat.PhaseDefeat,
		},
		{
			name:  "victory",
			src:   capSrc{2},
			setup: func(_, enemy *combat.Combatant) { enemy.Base.Health = 10 },
			act: func(f *fixture, id string) (*combat.TurnReport, error) {
				return f.eng.Attack(context.Background(), id)
			},
			phase: combat.PhaseVictory,
		},
		{
			name:  "fled",
			src:   capSrc{0},
			setup: func(_, _ *combat.Combatant) {},
			act: func(f *fixture, id string) (*combat.TurnReport, error) {
				return f.eng.Flee(context.Background(), id)
			},
			phase: combat.PhaseFled,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.src)
			player, enemy := newPlayer(), newEnemy()
			tc.setup(player, enemy)
			f.give(t, player, "parting")
			f.give(t, enemy, "parting")
			enc := start(t, f, player, enemy, nil)

			rep, err := tc.act(f, enc.ID)
			require.NoError(t, err)
			require.Equal(t, tc.phase, rep.Phase)
			assert.Equal(t, 1, countEvents(rep, combat.EventTrigger, "p1"))
			if enemy.Alive() {
				assert.Equal(t, 1, countEvents(rep, combat.EventTrigger, "e1"))
			} else {
				assert.Zero(t, countEvents(rep, combat.EventTrigger, "e1"))
			}
		})
	}
}

func TestBoss_EnragesOnce(t *testing.T) {
	f := newFixture(t, capSrc{2})
	boss := newEnemy()
	boss.Role = &combat.Boss{Enemy: combat.Enemy{Floor: 1}, EnrageBelow: 0.5, EnrageEffect: "rage"}
	boss.Base.Health = 40
	enc := start(t, f, newPlayer(), boss, nil)

	rep, err := f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	role := enc.Enemy.Role.(*combat.Boss)
	assert.True(t, role.Enraged)
	assert.True(t, enc.Enemy.Effects.Has("rage"))
	assert.Equal(t, 1, countEvents(rep, combat.EventEnrage, ""))
	assert.Equal(t, 75, enc.Player.Health())

	rep, err = f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, countEvents(rep, combat.EventEnrage, ""))
}

func TestCompanions_AttackTheEnemy(t *testing.T) {
	f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
	wolf := &combat.Combatant{
		ID: "c1", Name: "Wolf", Role: &combat.Companion{OwnerID: "p1"}, Level: 1,
		Base:    stats.Stats{Health: 30, MaxHealth: 30, Attack: 20, Defense: 5},
		Effects: effect.NewSet(), Abilities: ability.NewBook(),
	}
	enc, _, err := f.eng.Start(context.Background(), newPlayer(), newEnemy(), []*combat.Combatant{wolf}, nil)
	require.NoError(t, err)

	_, err = f.eng.Attack(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, enc.Enemy.Health())

	_, _, err = f.eng.Start(context.Background(), newPlayer(), newEnemy(), []*combat.Combatant{newEnemy()}, nil)
	assert.ErrorIs(t, err, combat.ErrInvalidCombatant)
}

func TestToggleSustained_DrainsThenForceDeactivates(t *testing.T) {
	f := newFixture(t, capSrc{2}, withBrain(passBrain{}))
	player := newPlayer()
	player.Sustained = []*sustained.Instance{sustained.NewInstance(&sustained.Def{
		ID: "barrier", Name: "Barrier", ResourceType: stats.Mana, ActivationCost: 10,
		Tick: sustained.TickCost{ResourceDrain: 5}, ConstantEffect: "fortify",
	})}
	enc := start(t, f, player, newEnemy(), nil)

	_, err := f.eng.Act(context.Background(), enc.ID, combat.Action{Type: combat.ActionToggleSustained, Sustained: "barrier"})
	require.NoError(t, err)
	assert.Equal(t, 10, enc.Player.Resource.Current)
	assert.True(t, enc.Player.Effects.Has(sustained.EffectID("barrier")))
	assert.Equal(t, 1, enc.Turn, "toggling is a free action")

	pass := combat.Action{Type: combat.ActionPass}
	for _, want := range []int{5, 0} {
		_, err = f.eng.Act(context.Background(), enc.ID, pass)
		require.NoError(t, err)
		assert.Equal(t, want, enc.Player.Resource.Current)
	}
	_, err = f.eng.Act(context.Background(), enc.ID, pass)
	require.NoError(t, err)
	assert.False(t, enc.Player.Sustained[0].Active)
	assert.False(t, enc.Player.Effects.Has(sustained.EffectID("barrier")))

	_, err = f.eng.ToggleSustained(enc.ID, "barrier")
	assert.ErrorIs(t, err, stats.ErrInsufficientResource)
	_, err = f.eng.ToggleSustained(enc.ID, "unknown")
	assert.Error(t, err)
}

func TestEncounter_UnknownID(t *testing.T) {
	f := newFixture(t, capSrc{2})
	_, err := f.eng.Attack(context.Background(), "nope")
	assert.ErrorIs(t, err, combat.ErrEncounterNotFound)
	_, err = f.eng.View("nope")
	assert.ErrorIs(t, err, combat.ErrEncounterNotFound)
}

func TestEnd_ForgetsEncounter(t *testing.T) {
	f := newFixture(t, capSrc{2})
	enc := start(t, f, newPlayer(), newEnemy(), nil)
	assert.Equal(t, 1, f.eng.Len())
	f.eng.End(enc.ID)
	assert.Equal(t, 0, f.eng.Len())
}

func TestInvariants_NoViolationsLogged(t *testing.T) {
	f := newFixture(t, capSrc{2})
	enc := start(t, f, newPlayer(), newEnemy(), nil)
	for !enc.Phase.Over() {
		_, err := f.eng.Attack(context.Background(), enc.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, enc.InvariantViolations)
	assert.Equal(t, 0, f.logs.FilterMessage("combat invariant violated").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("encounter ended").Len())
}
