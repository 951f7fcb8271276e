package users

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
)

// Service manages accounts and role assignment. Every operation is
// admin-only, and deleting one's own account is denied outright.
type Service struct {
	db      *sql.DB
	decider *authz.Decider
	audit   audit.Logger
	logger  *observability.Logger
}

// NewService creates a user service. auditLog and logger may be nil.
func NewService(db *sql.DB, decider *authz.Decider, auditLog audit.Logger, logger *observability.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, os.Stderr)
	}
	return &Service{db: db, decider: decider, audit: auditLog, logger: logger}
}

// Create makes a new account with the given role.
func (s *Service) Create(ctx context.Context, actor authz.Actor, email, displayName string, role authz.Role) (*User, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionCreate, authz.ResourceUser, authz.CheckContext{}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeUserCreate, "", err)
		return nil, err
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errs.NewValidation("email", "must be a valid address")
	}
	if strings.TrimSpace(displayName) == "" {
		return nil, errs.NewValidation("display_name", "is required")
	}
	if !role.Valid() {
		return nil, errs.NewValidation("role", fmt.Sprintf("unknown role %q", role))
	}

	now := time.Now().UTC()
	user := &User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.DisplayName, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if errs.IsUniqueViolation(err) {
			return nil, errs.NewConflict(fmt.Sprintf("email %s is already registered", email))
		}
		return nil, errs.NewPersistence("insert user", err)
	}

	event := audit.NewEvent(audit.EventTypeUserCreate, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithMessage(fmt.Sprintf("created account %s with role %s", email, role))
	event.TargetUserID = user.ID
	s.append(ctx, event)

	return user, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, actor authz.Actor, userID string) (*User, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceUser, authz.CheckContext{UserID: userID}); err != nil {
		return nil, err
	}
	return s.getUser(ctx, userID)
}

// GetByID looks up an account without a permission check. The identity
// middleware uses it to resolve the acting user on each request.
func (s *Service) GetByID(ctx context.Context, userID string) (*User, error) {
	return s.getUser(ctx, userID)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]*User, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionRead, authz.ResourceUser, authz.CheckContext{}); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, display_name, role, created_at, updated_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, errs.NewPersistence("list users", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		var role string
		if err := rows.Scan(&user.ID, &user.Email, &user.DisplayName, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, errs.NewPersistence("scan user", err)
		}
		user.Role = authz.Role(role)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewPersistence("list users", err)
	}

	return users, nil
}

// UpdateRole changes an account's role. The change is visible to the
// permission engine on the target's next request.
func (s *Service) UpdateRole(ctx context.Context, actor authz.Actor, userID string, role authz.Role) (*User, error) {
	if err := s.decider.Require(ctx, actor, authz.ActionUpdate, authz.ResourceUser, authz.CheckContext{UserID: userID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeUserRoleChange, userID, err)
		return nil, err
	}
	if !role.Valid() {
		return nil, errs.NewValidation("role", fmt.Sprintf("unknown role %q", role))
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	previous := user.Role
	user.Role = role
	user.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`,
		string(user.Role), user.UpdatedAt, user.ID)
	if err != nil {
		return nil, errs.NewPersistence("update role", err)
	}

	event := audit.NewEvent(audit.EventTypeUserRoleChange, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role)).
		WithMessage(fmt.Sprintf("role changed from %s to %s", previous, role))
	event.TargetUserID = user.ID
	s.append(ctx, event)

	return user, nil
}

// Delete removes an account. Led projects keep existing with their
// lead cleared; memberships are removed by the caller's schema cascade.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, userID string) error {
	if err := s.decider.Require(ctx, actor, authz.ActionDelete, authz.ResourceUser, authz.CheckContext{UserID: userID}); err != nil {
		s.auditDenied(ctx, actor, audit.EventTypeUserDelete, userID, err)
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return errs.NewPersistence("delete user", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errs.NewPersistence("delete user", err)
	}
	if affected == 0 {
		return errs.NewNotFound("user", userID)
	}

	event := audit.NewEvent(audit.EventTypeUserDelete, audit.EventStatusSuccess).
		WithActor(actor.ID, string(actor.Role))
	event.TargetUserID = userID
	s.append(ctx, event)

	return nil
}

func (s *Service) getUser(ctx context.Context, userID string) (*User, error) {
	user := &User{}
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, role, created_at, updated_at FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Email, &user.DisplayName, &role, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("user", userID)
	}
	if err != nil {
		return nil, errs.NewPersistence("get user", err)
	}
	user.Role = authz.Role(role)
	return user, nil
}

func (s *Service) auditDenied(ctx context.Context, actor authz.Actor, eventType audit.EventType, targetUserID string, err error) {
	event := audit.NewEvent(eventType, audit.EventStatusDenied).
		WithActor(actor.ID, string(actor.Role)).
		WithError(err)
	event.TargetUserID = targetUserID
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
