package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/models"
)

// The author join is LEFT so an orphaned row still lists, with an empty
// author.
const articleSelect = `SELECT a.id, a.title, a.content, a.date, a.image, a.author_id,
	COALESCE(u.username, ''), COALESCE(u.email, ''), a.published, a.last_modified
	FROM articles a LEFT JOIN users u ON u.id = a.author_id`

const articleOrder = ` ORDER BY a.date DESC, a.id DESC`

// ArticleStore persists articles.
type ArticleStore struct {
	db *sql.DB
}

// NewArticleStore creates an ArticleStore on db.
func NewArticleStore(db *sql.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func scanArticle(row interface{ Scan(...any) error }) (*models.Article, error) {
	a := &models.Article{}
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Date, &a.Image, &a.AuthorID,
		&a.AuthorUsername, &a.AuthorEmail, &a.Published, &a.LastModified)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *ArticleStore) list(ctx context.Context, op, where string, args ...any) ([]*models.Article, error) {
	rows, err := s.db.QueryContext(ctx, articleSelect+where+articleOrder, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	articles := make([]*models.Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return articles, nil
}

// CreateArticle inserts article and fills its ID.
func (s *ArticleStore) CreateArticle(ctx context.Context, article *models.Article) error {
	query := `INSERT INTO articles (title, content, date, image, author_id, published, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		article.Title, article.Content, article.Date, article.Image,
		article.AuthorID, article.Published, article.LastModified,
	).Scan(&article.ID)
	return mapError("create article", err)
}

// GetArticle returns the article with id, joined with its author.
func (s *ArticleStore) GetArticle(ctx context.Context, id int64) (*models.Article, error) {
	a, err := scanArticle(s.db.QueryRowContext(ctx, articleSelect+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, mapError("get article", err)
	}
	return a, nil
}

// ListByAuthor returns authorID's articles, newest first.
func (s *ArticleStore) ListByAuthor(ctx context.Context, authorID int64) ([]*models.Article, error) {
	return s.list(ctx, "list articles by author", ` WHERE a.author_id = $1`, authorID)
}

// ListAll returns every article, newest first.
func (s *ArticleStore) ListAll(ctx context.Context) ([]*models.Article, error) {
	return s.list(ctx, "list articles", "")
}

// ListPublished returns published articles, newest first.
func (s *ArticleStore) ListPublished(ctx context.Context) ([]*models.Article, error) {
	return s.list(ctx, "list published articles", ` WHERE a.published`)
}

// UpdateArticle writes the editable fields of article.
func (s *ArticleStore) UpdateArticle(ctx context.Context, article *models.Article) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET title = $1, content = $2, image = $3, last_modified = $4 WHERE id = $5`,
		article.Title, article.Content, article.Image, article.LastModified, article.ID)
	if err != nil {
		return mapError("update article", err)
	}
	return expectAffected("update article", res)
}

// SetPublished sets the published flag of article id.
func (s *ArticleStore) SetPublished(ctx context.Context, id int64, published bool, modifiedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET published = $1, last_modified = $2 WHERE id = $3`,
		published, modifiedAt, id)
	if err != nil {
		return mapError("publish article", err)
	}
	return expectAffected("publish article", res)
}

// DeleteArticle removes article id.
func (s *ArticleStore) DeleteArticle(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return mapError("delete article", err)
	}
	return expectAffected("delete article", res)
}

// CountByAuthor returns the total and published article counts of authorID.
func (s *ArticleStore) CountByAuthor(ctx context.Context, authorID int64) (models.ArticleCounts, error) {
	var counts models.ArticleCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE published) FROM articles WHERE author_id = $1`,
		authorID).Scan(&counts.Total, &counts.Published)
	if err != nil {
		return models.ArticleCounts{}, mapError("count articles", err)
	}
	return counts, nil
}
