// Package memory is an in-process implementation of the user, article and
// contact stores. It mirrors the Postgres stores' uniqueness rules and error
// values and is used by service tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/models"
)

// Store holds every table behind one mutex.
type Store struct {
	mu sync.Mutex

	nextID   int64
	users    map[int64]*models.User
	articles map[int64]*models.Article
	tokens   map[int64]*models.ResetToken // by user id
	contacts []*models.ContactMessage

	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[int64]*models.User),
		articles: make(map[int64]*models.Article),
		tokens:   make(map[int64]*models.ResetToken),
		now:      time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

// conflictFor mirrors the database unique indexes. exclude skips the row
// being updated.
func (s *Store) conflictFor(username, email string, exclude int64) error {
	for _, u := range s.users {
		if u.ID == exclude {
			continue
		}
		if u.Username == username {
			return apperr.Conflict("username", "Username already exists")
		}
		if strings.EqualFold(u.Email, email) {
			return apperr.Conflict("email", "Email already exists")
		}
	}
	return nil
}

// CreateUser inserts user and fills its ID and timestamps.
func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conflictFor(user.Username, user.Email, 0); err != nil {
		return err
	}

	now := s.now()
	user.ID = s.id()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = copyUser(user)
	return nil
}

// GetUserByID returns the user with id.
func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("get user")
	}
	return copyUser(u), nil
}

// GetUserByEmail looks a user up by email, ignoring case.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, notFound("get user by email")
}

// UsernameExists reports whether username is taken.
func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// EmailExists reports whether email is taken, ignoring case.
func (s *Store) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// UpdateProfile sets username and email together or not at all.
func (s *Store) UpdateProfile(_ context.Context, id int64, username, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return notFound("update user")
	}
	if err := s.conflictFor(username, email, id); err != nil {
		return err
	}
	u.Username = username
	u.Email = email
	u.UpdatedAt = s.now()
	return nil
}

// DeleteUser removes the user with its token and articles.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return notFound("delete user")
	}
	delete(s.tokens, id)
	for aid, a := range s.articles {
		if a.AuthorID == id {
			delete(s.articles, aid)
		}
	}
	delete(s.users, id)
	return nil
}

// UpsertResetToken replaces the user's reset token.
func (s *Store) UpsertResetToken(_ context.Context, token *models.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token.UserID]; !ok {
		return fmt.Errorf("upsert reset token: user %d does not exist", token.UserID)
	}
	for uid, t := range s.tokens {
		if t.TokenHash == token.TokenHash && uid != token.UserID {
			return apperr.Conflict("", "Resource already exists")
		}
	}

	token.CreatedAt = s.now()
	if prev, ok := s.tokens[token.UserID]; ok {
		token.ID = prev.ID
	} else {
		token.ID = s.id()
	}
	c := *token
	s.tokens[token.UserID] = &c
	return nil
}

// GetResetTokenByHash returns the token stored under hash.
func (s *Store) GetResetTokenByHash(_ context.Context, hash string) (*models.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.TokenHash == hash {
			c := *t
			return &c, nil
		}
	}
	return nil, notFound("get reset token")
}

// RedeemResetToken swaps the password hash and deletes the token under the
// store lock.
func (s *Store) RedeemResetToken(_ context.Context, hash string, now time.Time, passwordHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var token *models.ResetToken
	for _, t := range s.tokens {
		if t.TokenHash == hash {
			token = t
			break
		}
	}
	if token == nil || token.Expired(now) {
		return 0, apperr.InvalidOrExpiredToken()
	}

	u, ok := s.users[token.UserID]
	if !ok {
		return 0, apperr.InvalidOrExpiredToken()
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now()
	delete(s.tokens, token.UserID)
	return u.ID, nil
}

// DeleteExpiredResetTokens removes tokens expired at or before now.
func (s *Store) DeleteExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for uid, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, uid)
			n++
		}
	}
	return n, nil
}

// ResetTokenCount returns the number of stored reset tokens.
func (s *Store) ResetTokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *Store) withAuthor(a *models.Article) *models.Article {
	c := *a
	c.AuthorUsername, c.AuthorEmail = "", ""
	if u, ok := s.users[a.AuthorID]; ok {
		c.AuthorUsername = u.Username
		c.AuthorEmail = u.Email
	}
	return &c
}

// CreateArticle inserts article and fills its ID.
func (s *Store) CreateArticle(_ context.Context, article *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[article.AuthorID]; !ok {
		return fmt.Errorf("create article: author %d does not exist", article.AuthorID)
	}
	article.ID = s.id()
	c := *article
	s.articles[article.ID] = &c
	return nil
}

// GetArticle returns the article with id.
func (s *Store) GetArticle(_ context.Context, id int64) (*models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, notFound("get article")
	}
	return s.withAuthor(a), nil
}

func (s *Store) list(keep func(*models.Article) bool) []*models.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Article, 0)
	for _, a := range s.articles {
		if keep(a) {
			out = append(out, s.withAuthor(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// ListByAuthor returns authorID's articles, newest first.
func (s *Store) ListByAuthor(_ context.Context, authorID int64) ([]*models.Article, error) {
	return s.list(func(a *models.Article) bool { return a.AuthorID == authorID }), nil
}

// ListAll returns every article, newest first.
func (s *Store) ListAll(_ context.Context) ([]*models.Article, error) {
	return s.list(func(*models.Article) bool { return true }), nil
}

// ListPublished returns published articles, newest first.
func (s *Store) ListPublished(_ context.Context) ([]*models.Article, error) {
	return s.list(func(a *models.Article) bool { return a.Published }), nil
}

// UpdateArticle writes the editable fields of article.
func (s *Store) UpdateArticle(_ context.Context, article *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[article.ID]
	if !ok {
		return notFound("update article")
	}
	a.Title = article.Title
	a.Content = article.Content
	a.Image = article.Image
	a.LastModified = article.LastModified
	return nil
}

// SetPublished sets the published flag of article id.
func (s *Store) SetPublished(_ context.Context, id int64, published bool, modifiedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return notFound("publish article")
	}
	a.Published = published
	a.LastModified = modifiedAt
	return nil
}

// DeleteArticle removes article id.
func (s *Store) DeleteArticle(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[id]; !ok {
		return notFound("delete article")
	}
	delete(s.articles, id)
	return nil
}

// CountByAuthor returns the total and published article counts of authorID.
func (s *Store) CountByAuthor(_ context.Context, authorID int64) (models.ArticleCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts models.ArticleCounts
	for _, a := range s.articles {
		if a.AuthorID != authorID {
			continue
		}
		counts.Total++
		if a.Published {
			counts.Published++
		}
	}
	return counts, nil
}

// SaveContactMessage stores msg and fills its ID and CreatedAt.
func (s *Store) SaveContactMessage(_ context.Context, msg *models.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = s.id()
	msg.CreatedAt = s.now()
	c := *msg
	s.contacts = append(s.contacts, &c)
	return nil
}

// ContactMessages returns a copy of the stored contact messages.
func (s *Store) ContactMessages() []models.ContactMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ContactMessage, 0, len(s.contacts))
	for _, m := range s.contacts {
		out = append(out, *m)
	}
	return out
}
