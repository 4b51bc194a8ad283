package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/models"
)

const userColumns = `id, username, email, password_hash, created_at, updated_at`

// UserStore persists users and their password reset tokens.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a UserStore on db.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts user and fills its ID and timestamps. A duplicate
// username or email is a Conflict naming the field.
func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapError("create user", err)
}

// GetUserByID returns the user with id.
func (s *UserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError("get user", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by email, ignoring case.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapError("get user by email", err)
	}
	return u, nil
}

// UsernameExists reports whether username is taken.
func (s *UserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, mapError("check username", err)
	}
	return exists, nil
}

// EmailExists reports whether email is taken, ignoring case.
func (s *UserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&exists)
	if err != nil {
		return false, mapError("check email", err)
	}
	return exists, nil
}

// UpdateProfile writes username and email in one statement.
func (s *UserStore) UpdateProfile(ctx context.Context, id int64, username, email string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $1, email = $2, updated_at = now() WHERE id = $3`,
		username, email, id)
	if err != nil {
		return mapError("update user", err)
	}
	return expectAffected("update user", res)
}

// DeleteUser removes the user's reset tokens, articles and the user row in
// one transaction.
func (s *UserStore) DeleteUser(ctx context.Context, id int64) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("delete reset tokens: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE author_id = $1`, id); err != nil {
			return fmt.Errorf("delete articles: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return expectAffected("delete user", res)
	})
}

// UpsertResetToken stores token as the user's only reset token, replacing
// any previous one atomically.
func (s *UserStore) UpsertResetToken(ctx context.Context, token *models.ResetToken) error {
	query := `INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = now()
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
	return mapError("upsert reset token", err)
}

// GetResetTokenByHash returns the token stored under hash.
func (s *UserStore) GetResetTokenByHash(ctx context.Context, hash string) (*models.ResetToken, error) {
	query := `SELECT id, user_id, token_hash, expires_at, created_at
		FROM password_reset_tokens WHERE token_hash = $1`

	t := &models.ResetToken{}
	err := s.db.QueryRowContext(ctx, query, hash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, mapError("get reset token", err)
	}
	return t, nil
}

// RedeemResetToken locks the token row for hash, sets the owner's password
// hash and deletes the token, all in one transaction. A missing or expired
// token fails with InvalidOrExpiredToken and changes nothing.
func (s *UserStore) RedeemResetToken(ctx context.Context, hash string, now time.Time, passwordHash string) (int64, error) {
	var userID int64
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		var (
			tokenID   int64
			expiresAt time.Time
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id, expires_at FROM password_reset_tokens WHERE token_hash = $1 FOR UPDATE`,
			hash).Scan(&tokenID, &userID, &expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.InvalidOrExpiredToken()
		}
		if err != nil {
			return fmt.Errorf("lock reset token: %w", err)
		}
		if !now.Before(expiresAt) {
			return apperr.InvalidOrExpiredToken()
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
			passwordHash, userID)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := expectAffected("update password", res); err != nil {
			return apperr.InvalidOrExpiredToken()
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE id = $1`, tokenID); err != nil {
			return fmt.Errorf("delete reset token: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// DeleteExpiredResetTokens removes tokens that expired at or before now.
func (s *UserStore) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapError("purge reset tokens", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge reset tokens: %w", err)
	}
	return n, nil
}
