package contact

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/mail"
	"github.com/platinummonkey/thoughtnest/pkg/models"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/validation"
)

const (
	maxNameLength    = 100
	maxMessageLength = 1000

	// DefaultNotifyTimeout bounds the background admin notification.
	DefaultNotifyTimeout = 30 * time.Second
)

// Store persists contact messages.
type Store interface {
	SaveContactMessage(ctx context.Context, msg *models.ContactMessage) error
}

// Runner starts detached background work. *async.Runner satisfies it.
type Runner interface {
	Go(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error)
}

// Request is the contact form payload.
type Request struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Options configures a Service.
type Options struct {
	// AdminAddress receives notifications. Empty disables them.
	AdminAddress  string
	NotifyTimeout time.Duration
	Metrics       *observability.Metrics
	Logger        *observability.Logger
}

// Service stores contact form submissions and notifies the site admin.
type Service struct {
	store   Store
	mailer  mail.Mailer
	runner  Runner
	admin   string
	timeout time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewService creates a Service.
func NewService(store Store, mailer mail.Mailer, runner Runner, opts Options) *Service {
	timeout := opts.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		store:   store,
		mailer:  mailer,
		runner:  runner,
		admin:   opts.AdminAddress,
		timeout: timeout,
		metrics: opts.Metrics,
		logger:  logger.WithField("component", "contact"),
	}
}

// Submit validates and saves req, then sends the admin notification in the
// background. A failed notification is logged and does not fail the call.
func (s *Service) Submit(ctx context.Context, req Request) (*models.ContactMessage, error) {
	msg := &models.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   models.NormalizeEmail(req.Email),
		Message: strings.TrimSpace(req.Message),
	}

	v := validation.New()
	v.Required("name", msg.Name, "Name is required")
	v.Check(utf8.RuneCountInString(msg.Name) <= maxNameLength, "name", "Name must be under 100 characters")
	v.Required("email", msg.Email, "Email is required")
	v.Email("email", msg.Email, "Invalid email address")
	v.Required("message", msg.Message, "Message is required")
	v.Check(utf8.RuneCountInString(msg.Message) <= maxMessageLength, "message", "Message must be under 1000 characters")
	if err := v.Err(""); err != nil {
		return nil, err
	}

	if err := s.store.SaveContactMessage(ctx, msg); err != nil {
		return nil, apperr.Internal("Failed to save message", err)
	}
	if s.metrics != nil {
		s.metrics.ContactMessagesTotal.Inc()
	}

	if s.admin == "" || s.mailer == nil || s.runner == nil {
		s.logger.WithField("message_id", msg.ID).Debug("Contact notification disabled")
		return msg, nil
	}

	notice := mail.ContactNotification(s.admin, msg)
	s.runner.Go(ctx, s.timeout, "contact notification", func(ctx context.Context) error {
		return s.mailer.Send(ctx, notice)
	})
	return msg, nil
}
