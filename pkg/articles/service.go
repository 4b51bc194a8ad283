package articles

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/cache"
	"github.com/platinummonkey/thoughtnest/pkg/models"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
)

const (
	msgNotFound      = "Article not found"
	msgForbidden     = "Not authorized"
	msgAuthRequired  = "Authentication required"
	unknownAuthor    = "Unknown"
	publishedListKey = "published"
	dateLayout       = "2006-01-02"
	maxTitleLength   = 255
)

// Store persists articles. Reads fill the author's username from the users
// table.
type Store interface {
	CreateArticle(ctx context.Context, article *models.Article) error
	GetArticle(ctx context.Context, id int64) (*models.Article, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]*models.Article, error)
	ListAll(ctx context.Context) ([]*models.Article, error)
	ListPublished(ctx context.Context) ([]*models.Article, error)
	UpdateArticle(ctx context.Context, article *models.Article) error
	SetPublished(ctx context.Context, id int64, published bool, modifiedAt time.Time) error
	DeleteArticle(ctx context.Context, id int64) error
}

// ImageUploader stores an uploaded image and returns its public URL.
type ImageUploader interface {
	Store(ctx context.Context, filename string, body io.Reader, size int64, contentType string) (string, error)
}

// View is the article representation returned to clients.
type View struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	Date             string    `json:"date"`
	Image            string    `json:"image"`
	AuthorUsername   string    `json:"authorUsername"`
	Published        bool      `json:"published"`
	LastModifiedDate time.Time `json:"lastModifiedDate"`
}

// NewView converts a stored article.
func NewView(a *models.Article) View {
	author := a.AuthorUsername
	if author == "" {
		author = unknownAuthor
	}
	return View{
		ID:               a.ID,
		Title:            a.Title,
		Content:          a.Content,
		Date:             a.Date.Format(dateLayout),
		Image:            a.Image,
		AuthorUsername:   author,
		Published:        a.Published,
		LastModifiedDate: a.LastModified,
	}
}

func newViews(list []*models.Article) []View {
	views := make([]View, 0, len(list))
	for _, a := range list {
		views = append(views, NewView(a))
	}
	return views
}

// Input is the editable part of an article.
type Input struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   string `json:"image"`
}

func (in Input) validate() error {
	v := validation.New()
	v.Required("title", in.Title, "Title is required")
	v.Check(len([]rune(in.Title)) <= maxTitleLength, "title", "Title must be at most 255 characters")
	v.Required("content", in.Content, "Content is required")
	return v.Err("")
}

// Options configures a Service. Nil caches disable caching.
type Options struct {
	// PublishedCache holds the public listing.
	PublishedCache *cache.Tiered[[]View]
	// ArticleCache holds single article views by id.
	ArticleCache *cache.Tiered[View]
	Metrics      *observability.Metrics
	Logger       *observability.Logger
	Clock        func() time.Time
}

// Service implements article CRUD, publishing and image upload. Update,
// delete and publish are limited to the article's author.
type Service struct {
	store     Store
	uploader  ImageUploader
	published *cache.Tiered[[]View]
	views     *cache.Tiered[View]
	metrics   *observability.Metrics
	logger    *observability.Logger
	now       func() time.Time
}

// NewService creates a Service. uploader may be nil when uploads are disabled.
func NewService(store Store, uploader ImageUploader, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		store:     store,
		uploader:  uploader,
		published: opts.PublishedCache,
		views:     opts.ArticleCache,
		metrics:   opts.Metrics,
		logger:    logger.WithField("component", "articles"),
		now:       clock,
	}
}

// Create stores a new unpublished article owned by identity.
func (s *Service) Create(ctx context.Context, identity *auth.Identity, in Input) (*View, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(msgAuthRequired)
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	article := &models.Article{
		Title:          in.Title,
		Content:        in.Content,
		Image:          strings.TrimSpace(in.Image),
		AuthorID:       identity.UserID,
		AuthorUsername: identity.Username,
		AuthorEmail:    identity.Email,
		Date:           now,
		LastModified:   now,
	}
	if err := s.store.CreateArticle(ctx, article); err != nil {
		return nil, apperr.Internal("Failed to create article", err)
	}

	s.recordMutation("create")
	view := NewView(article)
	return &view, nil
}

// Get returns article id. Any authenticated caller may read any article.
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	load := func(ctx context.Context) (View, error) {
		article, err := s.load(ctx, id)
		if err != nil {
			return View{}, err
		}
		return NewView(article), nil
	}

	var view View
	var err error
	if s.views != nil {
		view, err = s.views.Fetch(ctx, strconv.FormatInt(id, 10), load)
	} else {
		view, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListMine returns the caller's articles, newest first.
func (s *Service) ListMine(ctx context.Context, identity *auth.Identity) ([]View, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(msgAuthRequired)
	}
	list, err := s.store.ListByAuthor(ctx, identity.UserID)
	if err != nil {
		return nil, apperr.Internal("Failed to list articles", err)
	}
	return newViews(list), nil
}

// ListAll returns every article, newest first.
func (s *Service) ListAll(ctx context.Context) ([]View, error) {
	list, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to list articles", err)
	}
	return newViews(list), nil
}

// ListPublished returns the published articles, newest first.
func (s *Service) ListPublished(ctx context.Context) ([]View, error) {
	load := func(ctx context.Context) ([]View, error) {
		list, err := s.store.ListPublished(ctx)
		if err != nil {
			return nil, apperr.Internal("Failed to list articles", err)
		}
		return newViews(list), nil
	}
	if s.published == nil {
		return load(ctx)
	}
	return s.published.Fetch(ctx, publishedListKey, load)
}

// Update replaces the title, content and image of article id.
func (s *Service) Update(ctx context.Context, identity *auth.Identity, id int64, in Input) (*View, error) {
	article, err := s.authorize(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := in.validate(); err != nil {
		return nil, err
	}

	article.Title = in.Title
	article.Content = in.Content
	article.Image = strings.TrimSpace(in.Image)
	article.LastModified = s.now().UTC()
	if err := s.store.UpdateArticle(ctx, article); err != nil {
		return nil, s.classify(err, "Failed to update article")
	}

	s.invalidate(ctx, id)
	s.recordMutation("update")
	view := NewView(article)
	return &view, nil
}

// Delete removes article id.
func (s *Service) Delete(ctx context.Context, identity *auth.Identity, id int64) error {
	if _, err := s.authorize(ctx, identity, id); err != nil {
		return err
	}
	if err := s.store.DeleteArticle(ctx, id); err != nil {
		return s.classify(err, "Failed to delete article")
	}
	s.invalidate(ctx, id)
	s.recordMutation("delete")
	return nil
}

// SetPublished sets the published flag of article id.
func (s *Service) SetPublished(ctx context.Context, identity *auth.Identity, id int64, published bool) error {
	if _, err := s.authorize(ctx, identity, id); err != nil {
		return err
	}
	if err := s.store.SetPublished(ctx, id, published, s.now().UTC()); err != nil {
		return s.classify(err, "Failed to update article")
	}
	s.invalidate(ctx, id)
	if published {
		s.recordMutation("publish")
	} else {
		s.recordMutation("unpublish")
	}
	return nil
}

// UploadImage stores an article image and returns its public URL.
func (s *Service) UploadImage(ctx context.Context, identity *auth.Identity, filename string, body io.Reader, size int64, contentType string) (string, error) {
	if identity == nil {
		return "", apperr.Unauthorized(msgAuthRequired)
	}
	if s.uploader == nil {
		return "", apperr.Upstream("Image upload is not configured", nil)
	}

	ctx, span := observability.Tracer().Start(ctx, "articles.UploadImage")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", identity.UserID), attribute.Int64("upload.size", size))

	url, err := s.uploader.Store(ctx, filename, body, size, contentType)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return url, nil
}

// InvalidateCache drops every cached view. Author renames and account
// deletions change views without touching articles.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.published != nil {
		if err := s.published.Purge(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to purge published article cache")
		}
	}
	if s.views != nil {
		if err := s.views.Purge(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to purge article cache")
		}
	}
}

// authorize loads article id for a mutation by identity. Checks run in a
// fixed order: no identity, missing article, then foreign owner.
func (s *Service) authorize(ctx context.Context, identity *auth.Identity, id int64) (*models.Article, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(msgAuthRequired)
	}
	article, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !article.OwnedBy(identity.UserID) {
		s.logger.WithFields(map[string]interface{}{
			"article_id": id,
			"user_id":    identity.UserID,
		}).Debug("Rejected article mutation by non-owner")
		return nil, apperr.Forbidden(msgForbidden)
	}
	return article, nil
}

func (s *Service) load(ctx context.Context, id int64) (*models.Article, error) {
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return nil, s.classify(err, "Failed to load article")
	}
	return article, nil
}

func (s *Service) classify(err error, message string) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound(msgNotFound)
	}
	return apperr.Internal(message, err)
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.published != nil {
		if err := s.published.Delete(ctx, publishedListKey); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate published article cache")
		}
	}
	if s.views != nil {
		if err := s.views.Delete(ctx, strconv.FormatInt(id, 10)); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate article cache")
		}
	}
}

func (s *Service) recordMutation(op string) {
	if s.metrics != nil {
		s.metrics.ArticleMutationsTotal.WithLabelValues(op).Inc()
	}
}
