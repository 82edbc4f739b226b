package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/delve/internal/game/ability"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/effect"
	"github.com/cory-johannsen/delve/internal/game/stats"
	"github.com/cory-johannsen/delve/internal/storage/postgres"
	"github.com/cory-johannsen/delve/internal/testutil"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func makePlayer(name string) *combat.Combatant {
	book := ability.NewBook("fireball")
	book.SetCooldown("fireball", 2)
	return &combat.Combatant{
		ID:        uniqueName("p"),
		Name:      name,
		Role:      &combat.Player{XP: 40, Gold: 12},
		Level:     3,
		ClassID:   "mage",
		Base:      stats.Stats{Health: 50, MaxHealth: 60, Attack: 6, Defense: 4, SpellPower: 15},
		Resource:  stats.Resource{Type: stats.Mana, Current: 20, Max: 60},
		Effects:   effect.NewSet(),
		Abilities: book,
		Stance:    combat.Aggressive,
	}
}

func TestSnapshotRepository_SaveLoad(t *testing.T) {
	repo := postgres.NewSnapshotRepository(testutil.NewPool(t))
	ctx := context.Background()

	p := makePlayer("Aria")
	require.NoError(t, repo.Save(ctx, "slot1", p))

	got, err := repo.Load(ctx, "slot1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Aria", got.Name)
	assert.Equal(t, combat.KindPlayer, got.Kind())
	assert.Equal(t, 50, got.Base.Health)
	assert.Equal(t, 20, got.Resource.Current)
	assert.Equal(t, 2, got.Abilities.Cooldown("fireball"))
	assert.Equal(t, combat.Aggressive, got.Stance)
	require.NotNil(t, got.PlayerRole())
	assert.Equal(t, 12, got.PlayerRole().Gold)
}

func TestSnapshotRepository_SaveOverwrites(t *testing.T) {
	repo := postgres.NewSnapshotRepository(testutil.NewPool(t))
	ctx := context.Background()

	p := makePlayer("Aria")
	require.NoError(t, repo.Save(ctx, "slot1", p))
	p.Level = 4
	p.Base.Health = 10
	require.NoError(t, repo.Save(ctx, "slot1", p))

	got, err := repo.Load(ctx, "slot1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Level)
	assert.Equal(t, 10, got.Base.Health)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].Level)
}

func TestSnapshotRepository_EmptySlotRejected(t *testing.T) {
	repo := postgres.NewSnapshotRepository(nil)
	err := repo.Save(context.Background(), "", makePlayer("Aria"))
	assert.Error(t, err)
}

func TestSnapshotRepository_LoadMissing(t *testing.T) {
	repo := postgres.NewSnapshotRepository(testutil.NewPool(t))
	_, err := repo.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, postgres.ErrSnapshotNotFound)
}

func TestSnapshotRepository_DeleteAndList(t *testing.T) {
	repo := postgres.NewSnapshotRepository(testutil.NewPool(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "a", makePlayer("Aria")))
	require.NoError(t, repo.Save(ctx, "b", makePlayer("Bram")))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, repo.Delete(ctx, "a"))
	assert.ErrorIs(t, repo.Delete(ctx, "a"), postgres.ErrSnapshotNotFound)

	list, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Slot)
	assert.Equal(t, "Bram", list[0].Name)
	assert.Equal(t, combat.KindPlayer, list[0].Kind)
	assert.False(t, list[0].UpdatedAt.IsZero())
}
