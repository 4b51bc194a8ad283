// Package models holds the persisted records shared by stores and services.
package models

import (
	"strings"
	"time"
)

// User is an account. PasswordHash is never serialized.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Article is a blog post owned by a user. AuthorUsername and AuthorEmail are
// filled by store reads that join the users table.
type Article struct {
	ID             int64
	Title          string
	Content        string
	Date           time.Time
	Image          string
	AuthorID       int64
	AuthorUsername string
	AuthorEmail    string
	Published      bool
	LastModified   time.Time
}

// OwnedBy reports whether userID is the article's author.
func (a *Article) OwnedBy(userID int64) bool {
	return a.AuthorID != 0 && a.AuthorID == userID
}

// ResetToken is a pending password reset. Only the hash of the emailed token
// is stored.
type ResetToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token can no longer be redeemed at now.
func (t *ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ContactMessage is a contact form submission.
type ContactMessage struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ArticleCounts summarizes a user's articles for the account view.
type ArticleCounts struct {
	Total     int `json:"articleCount"`
	Published int `json:"publishedCount"`
}
