package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/docstack/docstack/pkg/errs"
	"github.com/docstack/docstack/pkg/observability"
)

// Decider evaluates permission checks against current store state. It
// holds no mutable state and caches nothing: a role or membership change
// is visible on the very next Decide call.
type Decider struct {
	scopes  *ScopeResolver
	metrics *observability.Metrics
}

// NewDecider creates a decision engine backed by the given scope
// resolver. metrics may be nil (tests).
func NewDecider(scopes *ScopeResolver, metrics *observability.Metrics) *Decider {
	return &Decider{scopes: scopes, metrics: metrics}
}

// Decide evaluates whether actor may perform action on resource within
// cc. The error return carries scope-lookup failures only; a definite
// deny is (Decision{Allowed: false}, nil). Callers treat a non-nil error
// as a deny.
//
// Rules, in priority order:
//  1. User resource: admin-only, and deleting one's own account is
//     denied for everyone including admins.
//  2. Admin: allow everything else.
//  3. None: deny everything.
//  4. ProjectLead: read projects they lead or belong to, update projects
//     they lead, and full control of memberships, documents and versions
//     inside led projects.
//  5. Developer: read-only inside member projects.
//
// Unknown roles and missing context identifiers deny.
func (d *Decider) Decide(ctx context.Context, actor Actor, action Action, resource Resource, cc CheckContext) (Decision, error) {
	start := time.Now()
	decision, err := d.decide(ctx, actor, action, resource, cc)
	d.observe(action, resource, decision, err, time.Since(start))
	return decision, err
}

func (d *Decider) decide(ctx context.Context, actor Actor, action Action, resource Resource, cc CheckContext) (Decision, error) {
	if actor.ID == "" {
		return deny("no actor identity"), nil
	}

	// Account management is evaluated before the admin blanket allow so
	// that self-deletion stays denied even for admins.
	if resource == ResourceUser {
		return d.decideUser(actor, action, cc), nil
	}

	switch actor.Role {
	case RoleAdmin:
		return allow("admin"), nil
	case RoleNone:
		return deny("role none has no access"), nil
	case RoleProjectLead:
		return d.decideProjectLead(ctx, actor, action, resource, cc)
	case RoleDeveloper:
		return d.decideDeveloper(ctx, actor, action, resource, cc)
	}
	return deny(fmt.Sprintf("unknown role %q", actor.Role)), nil
}

func (d *Decider) decideUser(actor Actor, action Action, cc CheckContext) Decision {
	if action == ActionDelete && cc.UserID != "" && cc.UserID == actor.ID {
		return deny("self-deletion is not allowed")
	}
	if actor.Role == RoleAdmin {
		return allow("admin")
	}
	return deny("account management is admin-only")
}

func (d *Decider) decideProjectLead(ctx context.Context, actor Actor, action Action, resource Resource, cc CheckContext) (Decision, error) {
	switch resource {
	case ResourceProject:
		if cc.ProjectID == "" {
			return deny("no project in check context"), nil
		}
		led, err := d.scopes.ProjectIDsLedBy(ctx, actor.ID)
		if err != nil {
			return deny("scope lookup failed"), err
		}
		switch action {
		case ActionRead:
			if led.Contains(cc.ProjectID) {
				return allow("leads project"), nil
			}
			member, err := d.scopes.ProjectIDsMemberOf(ctx, actor.ID)
			if err != nil {
				return deny("scope lookup failed"), err
			}
			if member.Contains(cc.ProjectID) {
				return allow("member of project"), nil
			}
			return deny("neither leads nor belongs to project"), nil
		case ActionUpdate:
			if led.Contains(cc.ProjectID) {
				return allow("leads project"), nil
			}
			return deny("does not lead project"), nil
		}
		return deny("project create/delete is admin-only"), nil

	case ResourceMembership, ResourceDocument:
		if cc.ProjectID == "" {
			return deny("no project in check context"), nil
		}
		led, err := d.scopes.ProjectIDsLedBy(ctx, actor.ID)
		if err != nil {
			return deny("scope lookup failed"), err
		}
		if led.Contains(cc.ProjectID) {
			return allow("leads owning project"), nil
		}
		if action == ActionRead && resource == ResourceDocument {
			member, err := d.scopes.ProjectIDsMemberOf(ctx, actor.ID)
			if err != nil {
				return deny("scope lookup failed"), err
			}
			if member.Contains(cc.ProjectID) {
				return allow("member of owning project"), nil
			}
		}
		return deny("does not lead owning project"), nil

	case ResourceVersion:
		if cc.DocumentID == "" {
			return deny("no document in check context"), nil
		}
		led, err := d.scopes.DocIDsInLedProjects(ctx, actor.ID)
		if err != nil {
			return deny("scope lookup failed"), err
		}
		if led.Contains(cc.DocumentID) {
			return allow("leads owning project"), nil
		}
		if action == ActionRead {
			member, err := d.scopes.DocIDsInMemberProjects(ctx, actor.ID)
			if err != nil {
				return deny("scope lookup failed"), err
			}
			if member.Contains(cc.DocumentID) {
				return allow("member of owning project"), nil
			}
		}
		return deny("does not lead owning project"), nil
	}
	return deny(fmt.Sprintf("unknown resource %q", resource)), nil
}

func (d *Decider) decideDeveloper(ctx context.Context, actor Actor, action Action, resource Resource, cc CheckContext) (Decision, error) {
	if action != ActionRead {
		return deny("developers are read-only"), nil
	}

	switch resource {
	case ResourceProject, ResourceMembership:
		if cc.ProjectID == "" {
			return deny("no project in check context"), nil
		}
		member, err := d.scopes.ProjectIDsMemberOf(ctx, actor.ID)
		if err != nil {
			return deny("scope lookup failed"), err
		}
		if member.Contains(cc.ProjectID) {
			return allow("member of project"), nil
		}
		return deny("not a member of project"), nil

	case ResourceDocument:
		if cc.ProjectID == "" {
			return deny("no project in check context"), nil
		}
		member, err := d.scopes.ProjectIDsMemberOf(ctx, actor.ID)
		if err != nil {
			return deny("scope lookup failed"), err
		}
		if member.Contains(cc.ProjectID) {
			return allow("member of owning project"), nil
		}
		return deny("not a member of owning project"), nil

	case ResourceVersion:
		if cc.DocumentID == "" {
			return deny("no document in check context"), nil
		}
		member, err := d.scopes.DocIDsInMemberProjects(ctx, actor.ID)
		if err != nil {
			return deny("scope lookup failed"), err
		}
		if member.Contains(cc.DocumentID) {
			return allow("member of owning project"), nil
		}
		return deny("not a member of owning project"), nil
	}
	return deny(fmt.Sprintf("unknown resource %q", resource)), nil
}

// Require is the guard services call immediately before a mutation or
// read. It collapses scope-lookup errors and denies into a single
// AuthorizationError so callers fail closed either way.
func (d *Decider) Require(ctx context.Context, actor Actor, action Action, resource Resource, cc CheckContext) error {
	decision, err := d.Decide(ctx, actor, action, resource, cc)
	if err != nil {
		return errs.NewAuthorization("permission check failed")
	}
	if !decision.Allowed {
		return errs.NewAuthorization(decision.Reason)
	}
	return nil
}

// ReadableProjectIDs returns the projects actor may list. all=true means
// no filtering (admin); otherwise ids is the visible set, which may be
// empty.
func (d *Decider) ReadableProjectIDs(ctx context.Context, actor Actor) (all bool, ids IDSet, err error) {
	switch actor.Role {
	case RoleAdmin:
		return true, nil, nil
	case RoleProjectLead:
		led, err := d.scopes.ProjectIDsLedBy(ctx, actor.ID)
		if err != nil {
			return false, nil, err
		}
		member, err := d.scopes.ProjectIDsMemberOf(ctx, actor.ID)
		if err != nil {
			return false, nil, err
		}
		for id := range member {
			led[id] = struct{}{}
		}
		return false, led, nil
	case RoleDeveloper:
		member, err := d.scopes.ProjectIDsMemberOf(ctx, actor.ID)
		if err != nil {
			return false, nil, err
		}
		return false, member, nil
	}
	return false, IDSet{}, nil
}

// ReadableDocumentIDs returns the documents actor may list, with the
// same all/ids semantics as ReadableProjectIDs.
func (d *Decider) ReadableDocumentIDs(ctx context.Context, actor Actor) (all bool, ids IDSet, err error) {
	switch actor.Role {
	case RoleAdmin:
		return true, nil, nil
	case RoleProjectLead:
		led, err := d.scopes.DocIDsInLedProjects(ctx, actor.ID)
		if err != nil {
			return false, nil, err
		}
		member, err := d.scopes.DocIDsInMemberProjects(ctx, actor.ID)
		if err != nil {
			return false, nil, err
		}
		for id := range member {
			led[id] = struct{}{}
		}
		return false, led, nil
	case RoleDeveloper:
		member, err := d.scopes.DocIDsInMemberProjects(ctx, actor.ID)
		if err != nil {
			return false, nil, err
		}
		return false, member, nil
	}
	return false, IDSet{}, nil
}

func (d *Decider) observe(action Action, resource Resource, decision Decision, err error, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	outcome := "deny"
	if err != nil {
		outcome = "error"
	} else if decision.Allowed {
		outcome = "allow"
	}
	d.metrics.DecisionsTotal.WithLabelValues(string(resource), string(action), outcome).Inc()
	d.metrics.DecisionDuration.WithLabelValues(string(resource), string(action)).Observe(elapsed.Seconds())
}
