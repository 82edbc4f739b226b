// Package testutil provides test helpers for the PostgreSQL-backed stores.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/delve/internal/config"
	"github.com/cory-johannsen/delve/internal/storage/postgres"
)

// ImageEnv overrides the PostgreSQL image used by the test container.
const ImageEnv = "DELVE_TEST_POSTGRES_IMAGE"

const defaultImage = "postgres:16-alpine"

// Tables are the tables the migrations create, truncated between tests.
var Tables = []string{"combatant_snapshots", "encounter_results"}

// PostgresContainer is a migrated PostgreSQL test database.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	Config    config.DatabaseConfig
}

var (
	sharedMu  sync.Mutex
	shared    *PostgresContainer
	sharedErr error
)

// NewPostgresContainer returns the package-wide PostgreSQL container,
// starting and migrating it on first use. The container outlives the test
// and is reaped by testcontainers when the test binary exits.
//
// Precondition: Docker must be available; the test is skipped under -short or
// when no container provider is healthy.
// Postcondition: Returns a running, migrated container or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil && sharedErr == nil {
		start := time.Now()
		shared, sharedErr = startContainer(context.Background())
		if sharedErr == nil {
			t.Logf("postgres container started and migrated [%s]", time.Since(start))
		}
	}
	if sharedErr != nil {
		t.Fatalf("postgres container: %v", sharedErr)
	}
	return shared
}

func startContainer(ctx context.Context) (*PostgresContainer, error) {
	image := os.Getenv(ImageEnv)
	if image == "" {
		image = defaultImage
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "delve",
				"POSTGRES_PASSWORD": "delve",
				"POSTGRES_DB":       "delve_test",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithStartupTimeout(45 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("container port: %w", err)
	}

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "delve",
		Password:        "delve",
		Name:            "delve_test",
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
	if err := postgres.Migrate(cfg.DSN()); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{container: container, Pool: pool, Config: cfg}, nil
}

// Truncate empties tables, or every table in Tables when none are given.
func (pc *PostgresContainer) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	if len(tables) == 0 {
		tables = Tables
	}
	sql := "TRUNCATE " + strings.Join(tables, ", ") + " RESTART IDENTITY"
	if _, err := pc.Pool.DB().Exec(context.Background(), sql); err != nil {
		t.Fatalf("truncating %v: %v", tables, err)
	}
}

// NewPool returns a pool on the shared test database with every table empty.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := NewPostgresContainer(t)
	pc.Truncate(t)
	return pc.Pool.DB()
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return pc.Config.DSN()
}
