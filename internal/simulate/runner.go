package simulate

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/dice"
	"github.com/cory-johannsen/delve/internal/game/hazard"
	"github.com/cory-johannsen/delve/internal/game/npc"
	"github.com/cory-johannsen/delve/internal/observability"
	"github.com/cory-johannsen/delve/internal/storage/postgres"
)

// SnapshotStore persists the player between floors. *postgres.SnapshotRepository
// satisfies it.
type SnapshotStore interface {
	Save(ctx context.Context, slot string, c *combat.Combatant) error
}

// ResultStore records finished encounters. *postgres.EncounterResultRepository
// satisfies it.
type ResultStore interface {
	Record(ctx context.Context, res postgres.EncounterResult) (postgres.EncounterResult, error)
}

// Options tune a run.
type Options struct {
	Floors             int
	EncountersPerFloor int
	// BossEvery puts a boss at the end of every n-th floor; 0 disables bosses.
	BossEvery int
	// MaxTurns abandons an encounter that has not ended after this many turns.
	MaxTurns int
	// HazardChance is the probability a floor's room carries a hazard.
	HazardChance float64
	// RestFraction of max health is restored after each cleared floor.
	RestFraction float64
	// Slot names the snapshot save slot.
	Slot string
}

// DefaultOptions returns a five-floor run with a boss every third floor.
func DefaultOptions() Options {
	return Options{
		Floors:             5,
		EncountersPerFloor: 3,
		BossEvery:          3,
		MaxTurns:           60,
		HazardChance:       0.3,
		RestFraction:       0.5,
		Slot:               "autosave",
	}
}

// Summary is the tally of one run.
type Summary struct {
	FloorsCleared       int
	Victories           int
	Defeats             int
	Fled                int
	Abandoned           int
	Turns               int
	XP                  int
	Gold                int
	LevelsGained        int
	InvariantViolations int
	CappedTriggers      int
	Died                bool
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Engine  *combat.Engine
	NPCs    *npc.Manager
	Hazards *hazard.Registry
	Pilot   *Pilot
	Roller  *dice.Roller
	Logger  *zap.Logger
	Tracer  trace.Tracer
	// Themes are picked from per floor; empty means any theme.
	Themes []string
	// Snapshots and Results may be nil.
	Snapshots SnapshotStore
	Results   ResultStore
}

// Runner plays a player through floors of encounters.
type Runner struct {
	d    Deps
	opts Options
}

// NewRunner creates a Runner.
//
// Precondition: d.Engine, d.NPCs, d.Pilot, d.Roller, d.Logger and d.Tracer
// must be non-nil; opts.Floors, opts.EncountersPerFloor and opts.MaxTurns
// must be >= 1.
func NewRunner(d Deps, opts Options) (*Runner, error) {
	switch {
	case d.Engine == nil || d.NPCs == nil || d.Pilot == nil || d.Roller == nil || d.Logger == nil || d.Tracer == nil:
		return nil, errors.New("simulate: engine, npcs, pilot, roller, logger and tracer are required")
	case opts.Floors < 1 || opts.EncountersPerFloor < 1 || opts.MaxTurns < 1:
		return nil, fmt.Errorf("simulate: floors, encounters per floor and max turns must be >= 1, got %d/%d/%d",
			opts.Floors, opts.EncountersPerFloor, opts.MaxTurns)
	case opts.HazardChance < 0 || opts.HazardChance > 1 || opts.RestFraction < 0 || opts.RestFraction > 1:
		return nil, errors.New("simulate: hazard chance and rest fraction must be in [0, 1]")
	}
	return &Runner{d: d, opts: opts}, nil
}

// Run plays player through the configured floors until it dies or clears
// them all. A defeat ends the run with Summary.Died set; it is not an error.
//
// Precondition: player has a *combat.Player role and is alive.
// Postcondition: the returned summary is populated even when err != nil;
// a cancelled ctx stops the run before the next floor or encounter.
func (r *Runner) Run(ctx context.Context, player *combat.Combatant) (Summary, error) {
	ctx, span := r.d.Tracer.Start(ctx, "simulate.run", trace.WithAttributes(
		attribute.String("simulate.player", player.Name),
		attribute.Int("simulate.floors", r.opts.Floors),
	))
	defer span.End()

	var (
		sum  Summary
		room *hazard.Room
	)
	startLevel := player.Level
	defer func() { sum.LevelsGained = player.Level - startLevel }()

	for floor := 1; floor <= r.opts.Floors; floor++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		theme := r.pickTheme()
		next := r.pickRoom(floor)
		for _, ev := range r.d.Engine.EnterRoom(player, room, next) {
			r.d.Logger.Debug("room", zap.String("text", ev.Narrative))
		}
		room = next
		r.d.Logger.Info("floor entered",
			zap.Int("floor", floor),
			zap.String("theme", theme),
			zap.Int("hazards", len(room.Hazards)),
		)

		for i := 0; i < r.opts.EncountersPerFloor; i++ {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			boss := r.opts.BossEvery > 0 && floor%r.opts.BossEvery == 0 && i == r.opts.EncountersPerFloor-1
			enemy, err := r.spawn(floor, theme, boss)
			if err != nil {
				return sum, err
			}
			phase, err := r.fight(ctx, player, enemy, room, &sum)
			if err != nil {
				return sum, err
			}
			if phase == combat.PhaseDefeat {
				sum.Died = true
				span.SetAttributes(attribute.Int("simulate.floors_cleared", sum.FloorsCleared))
				return sum, nil
			}
		}

		sum.FloorsCleared = floor
		if _, err := r.d.Engine.Rest(player, r.opts.RestFraction); err != nil {
			return sum, fmt.Errorf("resting after floor %d: %w", floor, err)
		}
		if r.d.Snapshots != nil {
			if err := r.d.Snapshots.Save(ctx, r.opts.Slot, player); err != nil {
				return sum, fmt.Errorf("saving after floor %d: %w", floor, err)
			}
		}
	}
	span.SetAttributes(attribute.Int("simulate.floors_cleared", sum.FloorsCleared))
	return sum, nil
}

func (r *Runner) spawn(floor int, theme string, boss bool) (*combat.Combatant, error) {
	if boss {
		c, err := r.d.NPCs.GenerateBoss(floor, theme)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, npc.ErrNoTemplate) {
			return nil, err
		}
		r.d.Logger.Debug("no boss fits; using a regular enemy", zap.Int("floor", floor), zap.String("theme", theme))
	}
	c, err := r.d.NPCs.Generate(floor, theme)
	if err != nil {
		return nil, fmt.Errorf("generating enemy for floor %d: %w", floor, err)
	}
	return c, nil
}

// fight runs one encounter to a terminal phase or the turn cap and returns
// the phase it stopped in.
func (r *Runner) fight(ctx context.Context, player, enemy *combat.Combatant, room *hazard.Room, sum *Summary) (combat.Phase, error) {
	enc, _, err := r.d.Engine.Start(ctx, player, enemy, nil, room)
	if err != nil {
		return combat.PhaseIdle, fmt.Errorf("starting encounter with %s: %w", enemy.Name, err)
	}
	defer r.d.Engine.End(enc.ID)
	logger := observability.WithSpan(ctx, r.d.Logger).With(zap.String("encounter", enc.ID))

	for turns := 0; !enc.Phase.Over(); turns++ {
		if turns >= r.opts.MaxTurns {
			sum.Abandoned++
			logger.Warn("encounter abandoned",
				zap.String("enemy", enemy.Name),
				zap.Int("turns", turns),
			)
			return enc.Phase, nil
		}
		if err := r.turn(ctx, enc.ID); err != nil {
			return enc.Phase, err
		}
	}

	sum.Turns += enc.Turn
	sum.InvariantViolations += enc.InvariantViolations
	sum.CappedTriggers += enc.CappedTriggers
	switch enc.Phase {
	case combat.PhaseVictory:
		sum.Victories++
		if enc.Rewards != nil {
			sum.XP += enc.Rewards.XP
			sum.Gold += enc.Rewards.Gold
		}
	case combat.PhaseDefeat:
		sum.Defeats++
	case combat.PhaseFled:
		sum.Fled++
	}
	logger.Info("encounter finished",
		zap.String("enemy", enemy.Name),
		zap.String("outcome", enc.Phase.String()),
		zap.Int("turns", enc.Turn),
	)

	if r.d.Results != nil {
		res, err := postgres.ResultOf(enc)
		if err != nil {
			return enc.Phase, err
		}
		if _, err := r.d.Results.Record(ctx, res); err != nil {
			return enc.Phase, fmt.Errorf("recording encounter %s: %w", enc.ID, err)
		}
	}
	return enc.Phase, nil
}

// turn plays the pilot's decision for one player turn. A rejected free
// action or ability falls back to a basic attack.
func (r *Runner) turn(ctx context.Context, id string) error {
	v, err := r.d.Engine.View(id)
	if err != nil {
		return err
	}
	d := r.d.Pilot.Decide(v)
	if d.Stance != "" {
		free := combat.Action{Type: combat.ActionChangeStance, Stance: d.Stance}
		if _, err := r.d.Engine.Act(ctx, id, free); err != nil {
			r.d.Logger.Debug("stance change rejected", zap.Error(err))
		}
	}
	if d.Toggle != "" {
		free := combat.Action{Type: combat.ActionToggleSustained, Sustained: d.Toggle}
		if _, err := r.d.Engine.Act(ctx, id, free); err != nil {
			r.d.Logger.Debug("sustained toggle rejected", zap.Error(err))
		}
	}
	rep, err := r.d.Engine.Act(ctx, id, d.Action)
	if err != nil && d.Action.Type == combat.ActionAbility {
		r.d.Logger.Debug("ability rejected; attacking", zap.String("ability", string(d.Action.Ability)), zap.Error(err))
		rep, err = r.d.Engine.Attack(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("turn in %s: %w", id, err)
	}
	for _, ev := range rep.Events {
		r.d.Logger.Debug("event",
			zap.String("kind", string(ev.Kind)),
			zap.Int("amount", ev.Amount),
			zap.String("text", ev.Narrative),
		)
	}
	return nil
}

func (r *Runner) pickTheme() string {
	if len(r.d.Themes) == 0 {
		return ""
	}
	return r.d.Themes[r.d.Roller.Between("theme", 0, len(r.d.Themes)-1)]
}

func (r *Runner) pickRoom(floor int) *hazard.Room {
	id := fmt.Sprintf("floor-%d", floor)
	if r.d.Hazards == nil || !r.d.Roller.Chance("hazard", r.opts.HazardChance) {
		return hazard.NewRoom(id)
	}
	defs := r.d.Hazards.All()
	if len(defs) == 0 {
		return hazard.NewRoom(id)
	}
	return hazard.NewRoom(id, defs[r.d.Roller.Between("hazard", 0, len(defs)-1)])
}
