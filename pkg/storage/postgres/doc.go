// Package postgres implements the user, article and contact stores on
// PostgreSQL through database/sql and lib/pq.
//
// The schema lives in embedded goose migrations (see Migrate). Unique
// constraints on users.username, lower(users.email) and
// password_reset_tokens.user_id are the source of truth for uniqueness;
// violations come back as apperr Conflict errors naming the field. Missing
// rows come back wrapping apperr.ErrNotFound.
//
// Multi-statement writes (account deletion, reset token redemption) run in
// one transaction through WithTx.
package postgres
