package projects

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docstack/docstack/pkg/audit"
	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/errs"
	"github.com/docstack/docstack/pkg/observability"
	"github.com/docstack/docstack/pkg/storage"
)

// Service manages projects and their memberships. Creation and deletion
// are admin operations; leads can update their own projects and manage
// members and documents inside them.
type Service struct {
	db      *sql.DB
	blobs   storage.BlobStore
	decider *authz.Decider
	audit   audit.Logger
	logger  *observability.Logger
}

// NewService creates a project service. auditLog and logger may be nil.
func NewService(db *sql.DB, blobs storage.BlobStore, decider *authz.Decider, auditLog audit.Logger, logger *observability.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, os.Stderr)
	}
	return &Service{
		db:      db,
		blobs:   blobs,
		decider: decider,
		audit:   auditLog,
		logger:  logger,
	}
}

// Create makes a new project with the given lead.
func (s *Service) Create(ctx context.Context, actor authz.Actor, name, description, leadID string) (*Project, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionCreate, authz.ResourceProject, authz.CheckContext{}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeProjectCreate, "", err)
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		return nil, errs.NewValidation("name", "is required")
	}
	if leadID != "" {
		if err := s.requireUser(ctx, leadID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	project := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		LeadID:      leadID,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, lead_id, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		project.ID, project.Name, project.Description, nullable(project.LeadID), nullable(project.CreatedBy), project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return nil, errs.NewPersistence("insert project", err)
	}

	s.append(ctx, audit.NewEvent(audit.EventTypeProjectCreate, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithProject(project.ID).
		WithMessage(fmt.Sprintf("created %q with lead %s", name, leadID)))

	return project, nil
}

// Get returns one project after a read permission check.
func (s *Service) Get(ctx context.Context, actor authz.Actor, projectID string) (*Project, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceProject, authz.CheckContext{ProjectID: projectID}); err != nil {
		return nil, err
	}
	return s.getProject(ctx, projectID)
}

// List returns the projects visible to the actor: all of them for an
// admin, led-or-member projects otherwise.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]*Project, error) {
	all, visible, err := s.decider.ReadableProjectIDs(ctx, actor)
	if err != nil {
		return nil, errs.NewPersistence("resolve scope", err)
	}
	if !all && len(visible) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, lead_id, created_by, created_at, updated_at
		 FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, errs.NewPersistence("list projects", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		if all || visible.Contains(project.ID) {
			projects = append(projects, project)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list projects", err)
	}

	return projects, nil
}

// Update changes a project's name, description or lead.
func (s *Service) Update(ctx context.Context, actor authz.Actor, projectID, name, description, leadID string) (*Project, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionUpdate, authz.ResourceProject, authz.CheckContext{ProjectID: projectID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeProjectUpdate, projectID, err)
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		return nil, errs.NewValidation("name", "is required")
	}

	project, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if leadID != "" && leadID != project.LeadID {
		if err := s.requireUser(ctx, leadID); err != nil {
			return nil, err
		}
		project.LeadID = leadID
	}
	project.Name = name
	project.Description = description
	project.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET name = $1, description = $2, lead_id = $3, updated_at = $4 WHERE id = $5`,
		project.Name, project.Description, nullable(project.LeadID), project.UpdatedAt, project.ID)
	if err != nil {
		return nil, errs.NewPersistence("update project", err)
	}

	s.append(ctx, audit.NewEvent(audit.EventTypeProjectUpdate, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithProject(project.ID))

	return project, nil
}

// Delete removes a project. Memberships, documents and version rows go
// with it by cascade; the documents' blobs are removed best-effort and
// anything left behind is picked up by the reconciler.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, projectID string) error {
	if err := s.decider.Require(ctx, actor, authz.ActionDelete, authz.ResourceProject, authz.CheckContext{ProjectID: projectID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeProjectDelete, projectID, err)
		return err
	}

	if _, err := s.getProject(ctx, projectID); err != nil {
		return err
	}

	paths, err := s.projectBlobPaths(ctx, projectID)
	if err != nil {
		return err
	}
	if len(paths) > 0 && s.blobs != nil {
		for _, failure := range s.blobs.Remove(ctx, paths) {
			s.logger.WithError(failure.Err).Warn("blob removal failed", "path", failure.Path)
			event := audit.NewEvent(audit.EventTypeBlobRemoveFailed, audit.EventStatusFailure).
				WithActor(actor.ID, string(actor.Role)).
				WithError(failure.Err)
			event.StoragePath = failure.Path
			s.append(ctx, event)
		}
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID); err != nil {
		return errs.NewPersistence("delete project", err)
	}

	s.append(ctx, audit.NewEvent(audit.EventTypeProjectDelete, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithProject(projectID))

	return nil
}

// AddMember adds a user to a project. Adding an existing member is a
// conflict.
func (s *Service) AddMember(ctx context.Context, actor authz.Actor, projectID, userID string) error {
	if err := s.decider.Require(ctx, actor, authz.ActionCreate, authz.ResourceMembership, authz.CheckContext{ProjectID: projectID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeMemberAdd, projectID, err)
		return err
	}

	if _, err := s.getProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM memberships WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID).Scan(&exists)
	if err != nil {
		return errs.NewPersistence("check membership", err)
	}
	if exists {
		return errs.NewConflict(fmt.Sprintf("user %s is already a member of project %s", userID, projectID))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memberships (project_id, user_id, created_at) VALUES ($1, $2, $3)`,
		projectID, userID, time.Now().UTC())
	if err != nil {
		// Two concurrent adds can both pass the pre-check; the unique
		// constraint settles it.
		if errs.IsUniqueViolation(err) {
			return errs.NewConflict(fmt.Sprintf("user %s is already a member of project %s", userID, projectID))
		}
		return errs.NewPersistence("insert membership", err)
	}

	event := audit.NewEvent(audit.EventTypeMemberAdd, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithProject(projectID)
	event.TargetUserID = userID
	s.append(ctx, event)

	return nil
}

// RemoveMember removes a user from a project.
func (s *Service) RemoveMember(ctx context.Context, actor authz.Actor, projectID, userID string) error {
	if err := s.decider.Require(ctx, actor, authz.ActionDelete, authz.ResourceMembership, authz.CheckContext{ProjectID: projectID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeMemberRemove, projectID, err)
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return errs.NewPersistence("delete membership", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errs.NewPersistence("delete membership", err)
	}
	if affected == 0 {
		return errs.NewNotFound("membership", fmt.Sprintf("%s/%s", projectID, userID))
	}

	event := audit.NewEvent(audit.EventTypeMemberRemove, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithProject(projectID)
	event.TargetUserID = userID
	s.append(ctx, event)

	return nil
}

// ListMembers returns a project's memberships.
func (s *Service) ListMembers(ctx context.Context, actor authz.Actor, projectID string) ([]*Membership, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceMembership, authz.CheckContext{ProjectID: projectID}); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, user_id, created_at FROM memberships WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, errs.NewPersistence("list memberships", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m := &Membership{}
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.CreatedAt); err != nil {
			return nil, errs.NewPersistence("scan membership", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list memberships", err)
	}

	return members, nil
}

func (s *Service) getProject(ctx context.Context, projectID string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, lead_id, created_by, created_at, updated_at FROM projects WHERE id = $1`, projectID)
	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("project", projectID)
	}
	if err != nil {
		return nil, errs.NewPersistence("get project", err)
	}
	return project, nil
}

func (s *Service) projectBlobPaths(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.storage_path FROM document_versions v
		 JOIN documents d ON v.document_id = d.id
		 WHERE d.project_id = $1`, projectID)
	if err != nil {
		return nil, errs.NewPersistence("list project blobs", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, errs.NewPersistence("scan blob path", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list project blobs", err)
	}
	return paths, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	project := &Project{}
	var lead, createdBy sql.NullString
	err := row.Scan(&project.ID, &project.Name, &project.Description, &lead, &createdBy, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return nil, err
	}
	project.LeadID = lead.String
	project.CreatedBy = createdBy.String
	return project, nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return errs.NewPersistence("check user", err)
	}
	if !exists {
		return errs.NewNotFound("user", userID)
	}
	return nil
}

func (s *Service) auditDenied(ctx context.Context, actor authz.Actor, eventType audit.EventType, projectID string, err error) {
	event := audit.NewEvent(eventType, audit.EventStatusDenied).
		WithActor(actor.ID, string(actor.Role)).
		WithError(err)
	event.ProjectID = projectID
	s.append(ctx, event)
}

func (s *Service) append(ctx context.Context, event *audit.Event) {
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		event.RequestID = requestID
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.WithError(err).Warn("audit append failed", "event_type", string(event.EventType))
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
