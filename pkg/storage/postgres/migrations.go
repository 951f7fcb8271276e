package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the full schema, in order.
//
// Role is a column on users, not a side table: a user has exactly one
// role value at all times. Memberships carry a composite primary key so
// duplicate (project_id, user_id) pairs are impossible. Cascades run
// Project -> Membership/Document and Document -> Version.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(36) PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					role VARCHAR(20) NOT NULL DEFAULT 'none',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
			`,
		},
		{
			Version:     2,
			Description: "Create projects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					lead_id VARCHAR(36) REFERENCES users(id) ON DELETE SET NULL,
						created_by VARCHAR(36) REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_projects_lead_id ON projects(lead_id);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					project_id VARCHAR(36) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					PRIMARY KEY (project_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create documents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id VARCHAR(36) PRIMARY KEY,
					project_id VARCHAR(36) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					title VARCHAR(255) NOT NULL,
					current_version INTEGER NOT NULL DEFAULT 1,
						created_by VARCHAR(36) REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_documents_project_id ON documents(project_id);
			`,
		},
		{
			Version:     5,
			Description: "Create document_versions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS document_versions (
					id VARCHAR(36) PRIMARY KEY,
					document_id VARCHAR(36) NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
					version INTEGER NOT NULL,
					storage_path TEXT NOT NULL,
					file_name VARCHAR(255) NOT NULL,
					file_size BIGINT NOT NULL,
					content_type VARCHAR(255),
					created_by VARCHAR(36),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					UNIQUE (document_id, version)
				);

				CREATE INDEX IF NOT EXISTS idx_document_versions_document_id ON document_versions(document_id);
				CREATE INDEX IF NOT EXISTS idx_document_versions_storage_path ON document_versions(storage_path);
			`,
		},
	}
}

// RunMigrations applies all pending migrations in order, each in its own
// transaction.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, migration := range Migrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
			migration.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
