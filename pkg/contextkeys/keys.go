// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains authz.Actor (the resolved user_id + role pair)
	// Set by: middleware.IdentityMiddleware (pkg/middleware/identity.go)
	// Required by: all permission-gated endpoints
	IdentityKey Key = "identity"
)

// WithIdentity adds the resolved identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}
