// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteNoContent(w)
//
// Error responses map domain errors to HTTP status codes:
//
//	httputil.WriteError(w, err) // validation -> 400, authorization -> 403,
//	                            // not found -> 404, conflict -> 409,
//	                            // storage -> 502, everything else -> 500
//
// # Request Parsing
//
//	var req CreateProjectRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.PathStringOrError(w, r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(60<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Identity resolution and rate limiting middleware
package httputil
