package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/thoughtnest/pkg/httputil"
	"github.com/platinummonkey/thoughtnest/pkg/middleware"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

const (
	defaultMaxBodyBytes   int64 = 1 << 20
	defaultMaxUploadBytes int64 = 10 << 20

	// Rate limit scopes.
	scopeLogin   = "login"
	scopeForgot  = "forgot-password"
	scopeContact = "contact"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Users    UserService
	Articles ArticleService
	Contact  ContactService

	Tokens middleware.TokenValidator
	// Limiter may be nil, which disables rate limiting.
	Limiter *middleware.RateLimiter
	Logger  *observability.Logger
	// Metrics may be nil.
	Metrics *observability.Metrics

	AllowedOrigins []string
	MaxBodyBytes   int64
	MaxUploadBytes int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	limiter *middleware.RateLimiter
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		router:  mux.NewRouter(),
		limiter: deps.Limiter,
	}
	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	if deps.Metrics != nil {
		s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(deps.Metrics)))
	}

	s.setupRoutes(deps)

	authenticator := middleware.NewAuthenticator(deps.Tokens, deps.Users)
	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger.WithField("component", "http")),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(deps.AllowedOrigins),
		authenticator.Handler,
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(deps Deps) {
	s.RegisterRoutes(&AuthHandlers{
		users:    deps.Users,
		limit:    s.rateLimit,
		maxBytes: deps.MaxBodyBytes,
	})
	s.RegisterRoutes(NewArticleHandlers(deps.Articles, deps.MaxBodyBytes, deps.MaxUploadBytes))
	s.RegisterRoutes(&ContactHandlers{
		contact:  deps.Contact,
		limit:    s.rateLimit,
		maxBytes: deps.MaxBodyBytes,
	})
}

// rateLimit wraps h with the limiter for scope when one is configured.
func (s *Server) rateLimit(scope string, h http.Handler) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Middleware(scope)(h)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// limitFunc applies a named rate limit to a handler.
type limitFunc func(scope string, h http.Handler) http.Handler

func (f limitFunc) apply(scope string, h http.Handler) http.Handler {
	if f == nil {
		return h
	}
	return f(scope, h)
}

// jsonBody caps the request body for JSON endpoints.
func jsonBody(maxBytes int64, h http.HandlerFunc) http.Handler {
	return httputil.MaxBytesMiddleware(maxBytes)(h)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusNotFound, "Resource not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}
