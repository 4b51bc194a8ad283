package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/thoughtnest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactStore_Save(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(q("INSERT INTO contact_messages (name, email, message)")).
		WithArgs("Bob", "bob@example.com", "hi").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	msg := &models.ContactMessage{Name: "Bob", Email: "bob@example.com", Message: "hi"}
	require.NoError(t, NewContactStore(db).SaveContactMessage(context.Background(), msg))
	assert.Equal(t, int64(7), msg.ID)
	assert.Equal(t, now, msg.CreatedAt)
}
