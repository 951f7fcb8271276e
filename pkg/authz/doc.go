// Package authz implements role-based access control for docstack.
//
// Access is decided from a single role per user (admin, project_lead,
// developer, none) plus the actor's relationship to the resource: which
// projects they lead and which projects they belong to. The
// ScopeResolver computes those relationships with flat single-hop
// queries against the resource store, and the Decider applies the rules
// on top of them. Decisions are never cached, so role and membership
// changes take effect on the next request.
package authz
