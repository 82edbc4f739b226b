// Package main runs an autopiloted character down through dungeon floors and
// prints how it fared.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/content"
	"github.com/cory-johannsen/delve/internal/config"
	"github.com/cory-johannsen/delve/internal/game/combat"
	"github.com/cory-johannsen/delve/internal/narrative"
	"github.com/cory-johannsen/delve/internal/observability"
	"github.com/cory-johannsen/delve/internal/simulate"
	"github.com/cory-johannsen/delve/internal/storage/postgres"
)

func main() {
	start := time.Now()

	// A .env file is optional; variables may already be in the environment.
	if err := godotenv.Load(); err != nil {
		log.Printf("note: .env file not loaded: %v", err)
	}

	defaults := simulate.DefaultOptions()
	configPath := flag.String("config", "", "path to configuration file (empty = defaults and DELVE_* env)")
	classID := flag.String("class", "warrior", "player class")
	name := flag.String("name", "Hero", "player name")
	floors := flag.Int("floors", defaults.Floors, "number of floors to descend")
	encounters := flag.Int("encounters", defaults.EncountersPerFloor, "encounters per floor")
	bossEvery := flag.Int("boss-every", defaults.BossEvery, "end every n-th floor with a boss (0 = never)")
	maxTurns := flag.Int("max-turns", defaults.MaxTurns, "abandon an encounter after this many turns")
	persist := flag.Bool("persist", false, "save snapshots and encounter results to PostgreSQL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	shutdown, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("shutting down tracing", zap.Error(err))
		}
	}()

	lib, err := content.Open(cfg.Content.Dir)
	if err != nil {
		logger.Fatal("loading content", zap.String("dir", cfg.Content.Dir), zap.Error(err))
	}

	var narrator combat.Enricher
	if cfg.Narrative.Enabled {
		narrator = narrative.NewService(
			narrative.NewAnthropicNarrator(cfg.Narrative.APIKey, cfg.Narrative.Model, cfg.Narrative.MaxTokens),
			cfg.Narrative.Timeout,
			logger,
		)
	}

	world, err := simulate.Assemble(lib, simulate.RulesFrom(cfg.Engine), cfg.Engine.ScriptInstructionLimit,
		narrator, simulate.NewRoller(cfg.Engine.Seed, logger), logger, observability.Tracer("simulate"))
	if err != nil {
		logger.Fatal("assembling engines", zap.Error(err))
	}
	defer world.Close()

	var (
		snapshots simulate.SnapshotStore
		results   simulate.ResultStore
	)
	if *persist {
		if err := postgres.Migrate(cfg.Database.DSN()); err != nil {
			logger.Fatal("migrating database", zap.Error(err))
		}
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		snapshots = postgres.NewSnapshotRepository(pool.DB())
		results = postgres.NewEncounterResultRepository(pool.DB())
	}

	player, err := world.NewPlayer(*name, *classID)
	if err != nil {
		logger.Fatal("creating player", zap.Error(err))
	}

	opts := defaults
	opts.Floors = *floors
	opts.EncountersPerFloor = *encounters
	opts.BossEvery = *bossEvery
	opts.MaxTurns = *maxTurns
	runner, err := world.Runner(opts, snapshots, results)
	if err != nil {
		logger.Fatal("creating runner", zap.Error(err))
	}

	logger.Info("simulation starting",
		zap.String("class", *classID),
		zap.Int("floors", opts.Floors),
		zap.Int64("seed", cfg.Engine.Seed),
		zap.Bool("persist", *persist),
		zap.Duration("startup", time.Since(start)),
	)

	sum, err := runner.Run(ctx, player)
	if err != nil {
		logger.Error("simulation failed", zap.Error(err))
	}
	printSummary(player, sum)
	if err != nil {
		os.Exit(1)
	}
}

func printSummary(player *combat.Combatant, sum simulate.Summary) {
	outcome := "survived"
	if sum.Died {
		outcome = "died"
	}
	fmt.Printf("%s (level %d) %s after clearing %d floor(s)\n", player.Name, player.Level, outcome, sum.FloorsCleared)
	fmt.Printf("  victories %d  defeats %d  fled %d  abandoned %d\n", sum.Victories, sum.Defeats, sum.Fled, sum.Abandoned)
	fmt.Printf("  turns %d  xp %d  gold %d  levels gained %d\n", sum.Turns, sum.XP, sum.Gold, sum.LevelsGained)
	if sum.InvariantViolations > 0 || sum.CappedTriggers > 0 {
		fmt.Printf("  invariant violations %d  capped triggers %d\n", sum.InvariantViolations, sum.CappedTriggers)
	}
}
