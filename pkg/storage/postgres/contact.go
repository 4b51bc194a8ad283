package postgres

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/thoughtnest/pkg/models"
)

// ContactStore persists contact form submissions.
type ContactStore struct {
	db *sql.DB
}

// NewContactStore creates a ContactStore on db.
func NewContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

// SaveContactMessage inserts msg and fills its ID and CreatedAt.
func (s *ContactStore) SaveContactMessage(ctx context.Context, msg *models.ContactMessage) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO contact_messages (name, email, message) VALUES ($1, $2, $3) RETURNING id, created_at`,
		msg.Name, msg.Email, msg.Message,
	).Scan(&msg.ID, &msg.CreatedAt)
	return mapError("save contact message", err)
}
