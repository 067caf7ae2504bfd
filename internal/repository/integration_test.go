//go:build integration

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/ponto/internal/database"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

func setupIntegrationTest(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "ponto_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/ponto_test?sslmode=disable", host, port.Port())

	sqlDB, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	migrator, err := database.NewMigrator(sqlDB, "ponto_test")
	require.NoError(t, err)
	require.NoError(t, migrator.Up())

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestIntegration_EnrollAndAttendance(t *testing.T) {
	pool := setupIntegrationTest(t)
	ctx := context.Background()
	loc := time.UTC

	identities := NewIdentityRepository(pool)
	events := NewAttendanceRepository(pool, loc)

	for _, key := range []string{"b@x.com", "a@x.com"} {
		id := &domain.Identity{Key: key, Name: "User " + key}
		require.NoError(t, identities.Create(ctx, id, domain.Embedding{0.1, 0.2, 0.3}))
	}

	err := identities.Create(ctx, &domain.Identity{Key: "A@X.com", Name: "dup"}, domain.Embedding{1, 1, 1})
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)

	entries, err := identities.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a@x.com", entries[0].Identity.Key)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, []float64(entries[0].Embedding), 1e-6)

	day := time.Date(2024, 3, 1, 9, 0, 0, 0, loc)
	require.NoError(t, events.Append(ctx, domain.AttendanceEvent{Key: "a@x.com", Time: day, Direction: domain.DirectionIn}))
	require.NoError(t, events.Append(ctx, domain.AttendanceEvent{Key: "a@x.com", Time: day.Add(time.Hour), Direction: domain.DirectionOut}))

	logged, err := events.ListDay(ctx, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, logged, 2)
	assert.Equal(t, domain.CheckedOut, domain.Replay(logged)["a@x.com"].Status)

	days, err := events.Days(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01"}, days)
}

func TestIntegration_ListOrdersKeysBytewise(t *testing.T) {
	pool := setupIntegrationTest(t)
	ctx := context.Background()
	identities := NewIdentityRepository(pool)

	for _, key := range []string{"ab@x.com", "a_b@x.com", "a.b@x.com", "a-b@x.com"} {
		require.NoError(t, identities.Create(ctx, &domain.Identity{Key: key, Name: key}, domain.Embedding{1, 0, 0}))
	}

	entries, err := identities.List(ctx)
	require.NoError(t, err)

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Identity.Key
	}
	// the matcher tie-break relies on the same order Go uses for strings
	assert.Equal(t, []string{"a-b@x.com", "a.b@x.com", "a_b@x.com", "ab@x.com"}, keys)
}
