// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Overview
//
// Authenticator runs on every request. A valid "Authorization: Bearer" session
// token attaches an auth.Identity to the request context; missing or invalid
// tokens leave the request anonymous. Routes that need a caller wrap their
// handler with RequireIdentity, which answers 401.
//
//	authn := middleware.NewAuthenticator(tokens, usersService)
//	router.Use(authn.Handler)
//	router.Handle("/api/articles/my", middleware.RequireIdentity(h))
//
// RateLimiter: Redis-backed fixed window per client IP and scope
//
//	limiter := middleware.NewRateLimiter(redisClient, &middleware.RateLimitConfig{
//	    RequestsPerWindow: 10,
//	    WindowDuration:    time.Minute,
//	    TrustedProxies:    []string{"10.0.0.0/8"},
//	}, "ratelimit", metrics, logger)
//	router.Handle("/api/contact", limiter.Middleware("contact")(h))
//
// Clients are keyed on the connection's remote address. X-Forwarded-For and
// X-Real-IP are only read when that address is a trusted proxy. Redis errors
// fail open. A nil Redis client disables limiting.
//
// # Related Packages
//
//   - pkg/auth: Token validation
//   - pkg/users: Identity resolution
package middleware
