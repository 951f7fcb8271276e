package middleware

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/contextkeys"
	"github.com/docstack/docstack/pkg/observability"
)

// IdentityMiddleware resolves the acting user for each request. The
// upstream gateway authenticates the caller and forwards the account id
// in X-User-ID; the role is always looked up server-side here, never
// taken from the client, and never cached, so a role change is in
// effect on the very next request.
type IdentityMiddleware struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewIdentityMiddleware creates the identity resolver.
func NewIdentityMiddleware(db *sql.DB, logger *observability.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{db: db, logger: logger}
}

// Handler rejects requests without a resolvable identity.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			unauthorized(w, "missing X-User-ID header")
			return
		}

		var roleValue string
		err := m.db.QueryRowContext(r.Context(),
			`SELECT role FROM users WHERE id = $1`, userID).Scan(&roleValue)
		if err == sql.ErrNoRows {
			unauthorized(w, "unknown user")
			return
		}
		if err != nil {
			m.logger.WithError(err).Error("identity lookup failed", "user_id", userID)
			http.Error(w, `{"error":"identity lookup failed"}`, http.StatusInternalServerError)
			return
		}

		role, err := authz.ParseRole(roleValue)
		if err != nil {
			// A corrupted role column authenticates but authorizes
			// nothing.
			m.logger.WithError(err).Warn("unparseable role, treating as none", "user_id", userID)
			role = authz.RoleNone
		}

		actor := authz.Actor{ID: userID, Role: role}
		ctx := contextkeys.WithIdentity(r.Context(), actor)
		ctx = observability.WithUserID(ctx, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the resolved actor, if any.
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	actor, ok := ctx.Value(contextkeys.IdentityKey).(authz.Actor)
	return actor, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
