// Package middleware provides HTTP middleware for identity resolution
// and rate limiting.
//
// # Overview
//
// IdentityMiddleware turns the gateway-supplied X-User-ID header into an
// authz.Actor by looking the role up in the users table on every
// request; nothing about the role is trusted from the client or cached.
// Rate limiting comes in two flavours with the same keying (per-user
// when an identity is resolved, per-IP otherwise): an in-memory token
// bucket bounded by an LRU, and a Redis-backed counter shared across
// instances that fails open when Redis is down.
//
//	identity := middleware.NewIdentityMiddleware(db, logger)
//	limiter := middleware.NewDistributedRateLimitMiddleware(redisClient, logger, metrics)
//	router.Use(identity.Handler, limiter.Handler)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-User: 1000 req/min, 50 burst
package middleware
