// Package testutil starts a disposable PostgreSQL for store-backed tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fimlm/myidmji/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type shared struct {
	once sync.Once
	err  error
	pool *pgxpool.Pool
	url  string
}

var (
	mu         sync.Mutex
	containers = map[string]*shared{}
)

// Postgres returns a pool on a migrated database with every table emptied.
// name identifies the container so packages running in parallel do not
// truncate each other's data. The test is skipped when no container runtime
// is available.
func Postgres(t *testing.T, name string) (*pgxpool.Pool, string) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	mu.Lock()
	sh, ok := containers[name]
	if !ok {
		sh = &shared{}
		containers[name] = sh
	}
	mu.Unlock()

	sh.once.Do(func() { sh.err = sh.start(name) })
	require.NoError(t, sh.err)

	reset(t, sh.pool)
	return sh.pool, sh.url
}

func (sh *shared) start(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gathering"),
		postgres.WithUsername("gathering"),
		postgres.WithPassword("gathering"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithReuseByName(name),
	)
	if err != nil {
		return err
	}

	sh.url, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return err
	}
	if err := migrateWithRetry(sh.url, 10*time.Second); err != nil {
		return err
	}

	cfg, err := pgxpool.ParseConfig(sh.url)
	if err != nil {
		return err
	}
	cfg.MaxConns = 30
	cfg.ConnConfig.RuntimeParams["lock_timeout"] = "5000"
	sh.pool, err = pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	return database.MigrateRiver(ctx, sh.pool)
}

func reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx,
		`TRUNCATE TABLE attendees, event_church_links, events, churches, river_job RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func migrateWithRetry(databaseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := database.MigrateUp(databaseURL)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(500 * time.Millisecond)
	}
}
