package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// IDSet is a set of entity identifiers produced by the scope resolver.
type IDSet map[string]struct{}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// ScopeResolver computes the flat sets of project/document identifiers a
// user leads or is a member of. Every query is a single non-recursive
// lookup against the resource store; none of them goes through another
// permission-gated view, so scope resolution can never re-enter the
// decision engine.
//
// An empty set (not an error) is returned when the user leads or belongs
// to nothing.
type ScopeResolver struct {
	db *sql.DB
}

// NewScopeResolver creates a scope resolver over the resource store.
func NewScopeResolver(db *sql.DB) *ScopeResolver {
	return &ScopeResolver{db: db}
}

// ProjectIDsLedBy returns the projects where lead_id = userID.
func (r *ScopeResolver) ProjectIDsLedBy(ctx context.Context, userID string) (IDSet, error) {
	return r.queryIDs(ctx,
		`SELECT id FROM projects WHERE lead_id = $1`,
		userID)
}

// ProjectIDsMemberOf returns the projects with a membership row for userID.
func (r *ScopeResolver) ProjectIDsMemberOf(ctx context.Context, userID string) (IDSet, error) {
	return r.queryIDs(ctx,
		`SELECT project_id FROM memberships WHERE user_id = $1`,
		userID)
}

// DocIDsInLedProjects returns the documents whose project is led by userID.
func (r *ScopeResolver) DocIDsInLedProjects(ctx context.Context, userID string) (IDSet, error) {
	return r.queryIDs(ctx,
		`SELECT d.id FROM documents d JOIN projects p ON d.project_id = p.id WHERE p.lead_id = $1`,
		userID)
}

// DocIDsInMemberProjects returns the documents whose project userID is a
// member of.
func (r *ScopeResolver) DocIDsInMemberProjects(ctx context.Context, userID string) (IDSet, error) {
	return r.queryIDs(ctx,
		`SELECT d.id FROM documents d JOIN memberships m ON d.project_id = m.project_id WHERE m.user_id = $1`,
		userID)
}

func (r *ScopeResolver) queryIDs(ctx context.Context, query string, args ...interface{}) (IDSet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scope query failed: %w", err)
	}
	defer rows.Close()

	ids := make(IDSet)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scope scan failed: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scope iteration failed: %w", err)
	}

	return ids, nil
}
