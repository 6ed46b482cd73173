package persister_test

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/revflow-dev/queue/internal/jobscheduler/persister"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
	setupErr    error
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "queue"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres persister contract tests skipped: %v\n", err)
		os.Exit(m.Run())
	}
	pgContainer = container

	setupErr = initialiseDatabase(ctx)
	exitCode := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(ctx)
	}
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/queue?sslmode=disable", host, port.Port())

	if err := applyMigrations(dsn); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	testPool = pool
	return nil
}

func applyMigrations(dsn string) error {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("runtime caller lookup failed")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..", ".."))
	migrationsDir := filepath.Join(root, "db", "migrations")
	sourceURL := fmt.Sprintf("file://%s", migrationsDir)

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer sqlDB.Close()

	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func TestPostgresPersisterRestoresInInsertionOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres contract test in -short mode")
	}
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	t.Cleanup(func() { _, _ = testPool.Exec(ctx, "TRUNCATE TABLE scheduled_jobs;") })

	p := persister.NewPostgres(testPool)

	require.NoError(t, p.Put(ctx, "delivery", "job-1", `{"job":1}`))
	require.NoError(t, p.Put(ctx, "delivery", "job-2", `{"job":2}`))
	require.NoError(t, p.Put(ctx, "other-queue", "job-x", `{"job":"x"}`))
	require.NoError(t, p.Put(ctx, "delivery", "job-3", `{"job":3}`))

	got, err := p.Restore(ctx, "delivery")
	require.NoError(t, err)
	require.Equal(t, []string{`{"job":1}`, `{"job":2}`, `{"job":3}`}, got)
	require.Len(t, got, 3)
}

func TestPostgresPersisterPutUpdatesExistingBlob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres contract test in -short mode")
	}
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	t.Cleanup(func() { _, _ = testPool.Exec(ctx, "TRUNCATE TABLE scheduled_jobs;") })

	p := persister.NewPostgres(testPool)
	require.NoError(t, p.Put(ctx, "q", "job-1", "v1"))
	require.NoError(t, p.Put(ctx, "q", "job-1", "v2"))

	got, err := p.Restore(ctx, "q")
	require.NoError(t, err)
	require.Equal(t, []string{"v2"}, got)
}

func TestPostgresPersisterRemoveAndClearAll(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres contract test in -short mode")
	}
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	t.Cleanup(func() { _, _ = testPool.Exec(ctx, "TRUNCATE TABLE scheduled_jobs;") })

	p := persister.NewPostgres(testPool)
	require.NoError(t, p.Put(ctx, "q", "job-1", "v1"))
	require.NoError(t, p.Put(ctx, "q", "job-2", "v2"))
	require.NoError(t, p.Remove(ctx, "q", "job-1"))

	got, err := p.Restore(ctx, "q")
	require.NoError(t, err)
	require.Equal(t, []string{"v2"}, got)

	require.NoError(t, p.ClearAll(ctx))
	got, err = p.Restore(ctx, "q")
	require.NoError(t, err)
	require.Empty(t, got)
}
