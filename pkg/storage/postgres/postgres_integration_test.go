//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a PostgreSQL container and applies all migrations.
func setupPostgres(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("docstack_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	require.NoError(t, RunMigrations(ctx, db))

	cleanup := func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("warning: failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func TestMigrationsIdempotent(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	// A second run must be a no-op.
	require.NoError(t, RunMigrations(context.Background(), db))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(Migrations()), count)
}

func TestCascadeDeleteProject(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		"u-lead", "lead@example.com", "Lead", "project_lead", now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO projects (id, name, lead_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		"p-1", "Alpha", "u-lead", now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO memberships (project_id, user_id, created_at) VALUES ($1, $2, $3)`,
		"p-1", "u-lead", now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO documents (id, project_id, title, current_version, created_at, updated_at) VALUES ($1, $2, $3, 1, $4, $4)`,
		"d-1", "p-1", "Spec", now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO document_versions (id, document_id, version, storage_path, file_name, file_size, content_type, created_by, created_at)
		 VALUES ($1, $2, 1, $3, $4, 10, $5, $6, $7)`,
		"v-1", "d-1", "p-1/d-1/v1-spec.txt", "spec.txt", "text/plain", "u-lead", now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, "p-1")
	require.NoError(t, err)

	for _, q := range []string{
		`SELECT COUNT(*) FROM memberships WHERE project_id = 'p-1'`,
		`SELECT COUNT(*) FROM documents WHERE project_id = 'p-1'`,
		`SELECT COUNT(*) FROM document_versions WHERE document_id = 'd-1'`,
	} {
		var count int
		require.NoError(t, db.QueryRow(q).Scan(&count))
		assert.Zero(t, count, q)
	}
}

func TestDuplicateMembershipRejected(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, role, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		"u-dev", "dev@example.com", "Dev", "developer", now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		"p-1", "Alpha", now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO memberships (project_id, user_id, created_at) VALUES ($1, $2, $3)`,
		"p-1", "u-dev", now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO memberships (project_id, user_id, created_at) VALUES ($1, $2, $3)`,
		"p-1", "u-dev", now)
	require.Error(t, err, "duplicate membership must violate the primary key")
}
