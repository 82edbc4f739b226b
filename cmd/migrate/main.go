// Package main applies, rolls back or inspects the embedded schema migrations
// for the snapshot and encounter-history tables.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"github.com/cory-johannsen/delve/internal/config"
	"github.com/cory-johannsen/delve/internal/observability"
	"github.com/cory-johannsen/delve/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (empty = defaults and DELVE_* env)")
	command := flag.String("direction", "up", "up, down or version")
	steps := flag.Int("steps", 0, "number of migrations to apply or roll back (0 = all)")
	force := flag.Int("force", -1, "mark the schema clean at this version and exit (recovers a dirty schema)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("migrate")

	m, err := postgres.NewMigrator(cfg.Database.DSN())
	if err != nil {
		logger.Fatal("creating migrator", zap.String("host", cfg.Database.Host), zap.Error(err))
	}
	defer m.Close()

	if *force >= 0 {
		if err := m.Force(*force); err != nil {
			logger.Fatal("forcing version", zap.Int("version", *force), zap.Error(err))
		}
		report(logger, m, "forced", start)
		return
	}

	if err := run(m, *command, *steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			report(logger, m, "no changes", start)
			return
		}
		logger.Fatal("migration failed", zap.String("direction", *command), zap.Error(err))
	}
	report(logger, m, *command, start)
}

func run(m *migrate.Migrate, command string, steps int) error {
	switch command {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown direction %q: want up, down or version", command)
	}
}

func report(logger *zap.Logger, m *migrate.Migrate, what string, start time.Time) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Error("reading schema version", zap.Error(err))
		return
	}
	logger.Info(what,
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
		zap.Duration("elapsed", time.Since(start)),
	)
}
