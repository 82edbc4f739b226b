package simulate

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/content"
	"github.com/cory-johannsen/delve/internal/config"
	"github.com/cory-johannsen/delve/internal/game/ai"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/game/dice"
	"github.com/cory-johannsen/delve/internal/game/npc"
	"github.com/cory-johannsen/delve/internal/scripting"
)

// RulesFrom maps engine configuration onto combat rules.
func RulesFrom(e config.EngineConfig) combat.Rules {
	return combat.Rules{
		CritMultiplier: e.CritMultiplier,
		DefenseFactor:  e.DefenseFactor,
		Variance:       e.Variance,
		FleeBaseChance: e.FleeBaseChance,
		FleePerLevel:   e.FleePerLevel,
		FleeMaxChance:  e.FleeMaxChance,
		XPPerLevel:     e.XPPerLevel,
		RewardFloor:    e.RewardFloor,
		RewardCeil:     e.RewardCeil,
	}
}

// NewRoller returns a seeded roller when seed is non-zero and a
// crypto-backed one otherwise.
func NewRoller(seed int64, logger *zap.Logger) *dice.Roller {
	if seed != 0 {
		return dice.NewLoggedRoller(dice.NewSeededSource(seed), logger)
	}
	return dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
}

// World is the set of engines assembled from one content library.
type World struct {
	Library *content.Library
	Scripts *scripting.Manager
	Engine  *combat.Engine
	NPCs    *npc.Manager
	Pilot   *Pilot
	Roller  *dice.Roller
	Logger  *zap.Logger
	Tracer  trace.Tracer
}

// Assemble loads lib's scripts and AI domains and builds the combat engine
// around them. narrator may be nil.
//
// Precondition: lib, roller, logger and tracer must be non-nil.
// Postcondition: the caller must Close the returned World.
func Assemble(lib *content.Library, rules combat.Rules, scriptLimit int, narrator combat.Enricher, roller *dice.Roller, logger *zap.Logger, tracer trace.Tracer) (*World, error) {
	scripts := scripting.NewManager(roller, logger, scriptLimit)
	if err := lib.LoadScripts(scripts); err != nil {
		scripts.Close()
		return nil, err
	}
	planners, err := lib.Planners(scripts)
	if err != nil {
		scripts.Close()
		return nil, fmt.Errorf("registering ai domains: %w", err)
	}

	engine := combat.NewEngine(combat.Deps{
		Effects:   lib.Effects,
		Abilities: lib.Abilities,
		Combos:    lib.Combos,
		Scripts:   scripts,
		Narrator:  narrator,
		Brain:     ai.NewBrain(planners, lib.Abilities, logger),
		Roller:    roller,
		Rules:     rules,
		Logger:    logger,
		Tracer:    tracer,
	})
	return &World{
		Library: lib,
		Scripts: scripts,
		Engine:  engine,
		NPCs:    lib.NPCs(roller, logger),
		Pilot:   NewPilot(lib.Abilities),
		Roller:  roller,
		Logger:  logger,
		Tracer:  tracer,
	}, nil
}

// NewPlayer creates a level-1 player of classID.
func (w *World) NewPlayer(name, classID string) (*combat.Combatant, error) {
	def, ok := w.Library.Classes.Get(classID)
	if !ok {
		return nil, fmt.Errorf("unknown class %q", classID)
	}
	return def.NewPlayer(name, w.Library.Sustained)
}

// Runner returns a Runner over the world's engines. snapshots and results
// may be nil.
func (w *World) Runner(opts Options, snapshots SnapshotStore, results ResultStore) (*Runner, error) {
	return NewRunner(Deps{
		Engine:    w.Engine,
		NPCs:      w.NPCs,
		Hazards:   w.Library.Hazards,
		Pilot:     w.Pilot,
		Roller:    w.Roller,
		Logger:    w.Logger,
		Tracer:    w.Tracer,
		Themes:    w.Library.Themes(),
		Snapshots: snapshots,
		Results:   results,
	}, opts)
}

// Close releases the scripting VMs.
func (w *World) Close() {
	w.Scripts.Close()
}
