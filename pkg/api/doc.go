// Package api exposes the ThoughtNest HTTP API.
//
// Every response uses the envelope {"message", "status", "data"}. Requests
// pass request id, logging, recovery, CORS and authentication middleware
// before reaching the router; routes that need a caller wrap their handler
// with middleware.RequireIdentity, and ownership checks happen in the
// services.
//
// Routes:
//
//	POST   /api/auth/signup
//	POST   /api/auth/login                       (rate limited)
//	POST   /api/auth/forgot-password             (rate limited)
//	GET    /api/auth/reset-password/validate?token=
//	POST   /api/auth/reset-password
//	GET    /api/auth/account                     (auth)
//	PATCH  /api/auth/account, PUT                (auth)
//	DELETE /api/auth/account                     (auth)
//	POST   /api/articles                         (auth)
//	GET    /api/articles/my                      (auth)
//	GET    /api/articles/all                     (auth)
//	GET    /api/articles/public
//	GET    /api/articles/{id}                    (auth)
//	PUT    /api/articles/{id}                    (auth, owner)
//	DELETE /api/articles/{id}                    (auth, owner)
//	PATCH  /api/articles/{id}/publish?published= (auth, owner)
//	POST   /api/articles/upload-image            (auth, multipart "image")
//	POST   /api/contact                          (rate limited)
package api
