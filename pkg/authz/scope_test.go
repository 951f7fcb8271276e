package authz

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Minimal mirror of the production schema
	_, err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'none',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			lead_id TEXT,
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE memberships (
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project_id, user_id)
		);

		CREATE TABLE documents (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			current_version INTEGER NOT NULL DEFAULT 1,
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func seedUser(t *testing.T, db *sql.DB, id string, role Role) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, email, display_name, role) VALUES ($1, $2, $3, $4)`,
		id, id+"@example.com", id, string(role))
	require.NoError(t, err)
}

func seedProject(t *testing.T, db *sql.DB, id, leadID string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO projects (id, name, lead_id) VALUES ($1, $2, $3)`,
		id, "project "+id, leadID)
	require.NoError(t, err)
}

func seedMembership(t *testing.T, db *sql.DB, projectID, userID string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO memberships (project_id, user_id) VALUES ($1, $2)`,
		projectID, userID)
	require.NoError(t, err)
}

func seedDocument(t *testing.T, db *sql.DB, id, projectID string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO documents (id, project_id, title) VALUES ($1, $2, $3)`,
		id, projectID, "doc "+id)
	require.NoError(t, err)
}

func TestScopeResolverProjects(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "lead-1", RoleProjectLead)
	seedUser(t, db, "dev-1", RoleDeveloper)
	seedProject(t, db, "p1", "lead-1")
	seedProject(t, db, "p2", "lead-1")
	seedProject(t, db, "p3", "other-lead")
	seedMembership(t, db, "p3", "lead-1")
	seedMembership(t, db, "p1", "dev-1")

	resolver := NewScopeResolver(db)

	led, err := resolver.ProjectIDsLedBy(ctx, "lead-1")
	require.NoError(t, err)
	assert.Len(t, led, 2)
	assert.True(t, led.Contains("p1"))
	assert.True(t, led.Contains("p2"))
	assert.False(t, led.Contains("p3"))

	member, err := resolver.ProjectIDsMemberOf(ctx, "lead-1")
	require.NoError(t, err)
	assert.Len(t, member, 1)
	assert.True(t, member.Contains("p3"))

	member, err = resolver.ProjectIDsMemberOf(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, member, 1)
	assert.True(t, member.Contains("p1"))
}

func TestScopeResolverDocuments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "lead-1", RoleProjectLead)
	seedUser(t, db, "dev-1", RoleDeveloper)
	seedProject(t, db, "p1", "lead-1")
	seedProject(t, db, "p2", "other-lead")
	seedMembership(t, db, "p2", "dev-1")
	seedDocument(t, db, "d1", "p1")
	seedDocument(t, db, "d2", "p1")
	seedDocument(t, db, "d3", "p2")

	resolver := NewScopeResolver(db)

	led, err := resolver.DocIDsInLedProjects(ctx, "lead-1")
	require.NoError(t, err)
	assert.Len(t, led, 2)
	assert.True(t, led.Contains("d1"))
	assert.True(t, led.Contains("d2"))

	member, err := resolver.DocIDsInMemberProjects(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, member, 1)
	assert.True(t, member.Contains("d3"))
}

func TestScopeResolverEmptyForUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	resolver := NewScopeResolver(db)

	led, err := resolver.ProjectIDsLedBy(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, led)

	member, err := resolver.DocIDsInMemberProjects(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, member)
}
