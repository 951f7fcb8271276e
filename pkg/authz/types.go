package authz

import (
	"fmt"
	"strings"
)

// Role is the single role value carried by every user. Exclusivity is
// structural: role is a column on the users table, not a side table.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleProjectLead Role = "project_lead"
	RoleDeveloper   Role = "developer"
	RoleNone        Role = "none"
)

// ParseRole parses a role string. Unknown values return an error so a
// corrupted role can never widen access.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleProjectLead:
		return RoleProjectLead, nil
	case RoleDeveloper:
		return RoleDeveloper, nil
	case RoleNone:
		return RoleNone, nil
	}
	return RoleNone, fmt.Errorf("unknown role: %q", s)
}

// Valid reports whether the role is one of the four known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectLead, RoleDeveloper, RoleNone:
		return true
	}
	return false
}

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource represents a resource kind gated by the permission engine
type Resource string

const (
	ResourceProject    Resource = "project"
	ResourceMembership Resource = "membership"
	ResourceDocument   Resource = "document"
	ResourceVersion    Resource = "version"
	ResourceUser       Resource = "user"
)

// Actor is the authenticated (user_id, role) pair supplied by the
// identity layer, resolved server-side per request.
type Actor struct {
	ID   string
	Role Role
}

// CheckContext carries the resource identifiers a decision is scoped to.
// Which fields matter depends on the resource kind: project and
// membership checks use ProjectID, document and version checks use
// DocumentID (or ProjectID before the document exists), and user checks
// use UserID (the target account).
type CheckContext struct {
	ProjectID  string
	DocumentID string
	UserID     string
}

// Decision is the result of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
