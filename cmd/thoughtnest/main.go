package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/thoughtnest/pkg/api"
	"github.com/platinummonkey/thoughtnest/pkg/articles"
	"github.com/platinummonkey/thoughtnest/pkg/async"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/cache"
	"github.com/platinummonkey/thoughtnest/pkg/config"
	"github.com/platinummonkey/thoughtnest/pkg/contact"
	"github.com/platinummonkey/thoughtnest/pkg/janitor"
	"github.com/platinummonkey/thoughtnest/pkg/mail"
	"github.com/platinummonkey/thoughtnest/pkg/media"
	"github.com/platinummonkey/thoughtnest/pkg/middleware"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/storage/postgres"
	"github.com/platinummonkey/thoughtnest/pkg/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const dbStatsInterval = 15 * time.Second

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (overrides THOUGHTNEST_CONFIG_FILE)")
	envFile := flag.String("env-file", "", "Path to a .env file (overrides THOUGHTNEST_ENV_FILE)")
	flag.Parse()

	cfg, err := config.LoadConfig(config.LoadOptions{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout).
		WithField("service", cfg.Observability.OTel.ServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("ThoughtNest server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := observability.SignalContext(context.Background())
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	otelCfg := cfg.Observability.OTel
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        otelCfg.Enabled,
		Endpoint:       otelCfg.Endpoint,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: version,
		Insecure:       otelCfg.Insecure,
		SampleRatio:    otelCfg.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Storage
	pg := cfg.Storage.Postgres
	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:          pg.URL,
		MaxConns:     pg.MaxOpenConns,
		MaxIdleConns: pg.MaxIdleConns,
		MaxLifetime:  pg.ConnMaxLifetime,
		Timeout:      pg.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })

	if pg.AutoMigrate {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			shutdownQuietly(shutdown)
			return err
		}
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.URL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.Storage.Redis)
		if err != nil {
			shutdownQuietly(shutdown)
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	} else {
		logger.Warn("Redis not configured, caching is process-local and rate limiting is disabled")
	}

	objects, err := media.NewObjectStore(ctx, cfg.Storage.ObjectStore, logger)
	if err != nil {
		shutdownQuietly(shutdown)
		return err
	}

	userStore := postgres.NewUserStore(db)
	articleStore := postgres.NewArticleStore(db)
	contactStore := postgres.NewContactStore(db)

	// Services
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret,
		auth.WithTTL(cfg.Auth.SessionTTL),
		auth.WithIssuer(cfg.Auth.JWTIssuer),
	)
	if err != nil {
		shutdownQuietly(shutdown)
		return err
	}

	mailer := mail.New(cfg.Mail, logger, metrics)
	runner := async.NewRunner(logger)
	shutdown.Register("background tasks", runner.Wait)

	articleOpts := articles.Options{Metrics: metrics, Logger: logger}
	if cfg.Cache.Enabled {
		cacheOpts := cache.Options{Size: cfg.Cache.L1Size, TTL: cfg.Cache.TTL, Redis: rdb, Metrics: metrics, Logger: logger}
		listOpts, viewOpts := cacheOpts, cacheOpts
		listOpts.Prefix = "thoughtnest:articles:list:"
		viewOpts.Prefix = "thoughtnest:articles:view:"
		articleOpts.PublishedCache = cache.NewTiered[[]articles.View](listOpts)
		articleOpts.ArticleCache = cache.NewTiered[articles.View](viewOpts)
	}
	articleSvc := articles.NewService(articleStore, media.NewUploader(objects, cfg.Server.MaxUploadBytes, metrics), articleOpts)

	userSvc := users.NewService(userStore, articleStore, tokens, auth.NewBcryptHasher(cfg.Auth.BcryptCost), mailer, users.Options{
		ResetURL:        cfg.Auth.ResetURL,
		ResetTokenTTL:   cfg.Auth.ResetTokenTTL,
		Metrics:         metrics,
		Logger:          logger,
		OnAccountChange: articleSvc.InvalidateCache,
	})

	contactSvc := contact.NewService(contactStore, mailer, runner, contact.Options{
		AdminAddress:  cfg.Mail.AdminAddress,
		NotifyTimeout: cfg.Mail.Timeout * time.Duration(max(cfg.Mail.MaxAttempts, 1)),
		Metrics:       metrics,
		Logger:        logger,
	})

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled && rdb != nil {
		limiter = middleware.NewRateLimiter(rdb, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			WindowDuration:    cfg.RateLimit.Window,
			TrustedProxies:    cfg.RateLimit.TrustedProxies,
		}, "thoughtnest:ratelimit", metrics, logger)
	}

	server := api.NewServer(api.Deps{
		Users:          userSvc,
		Articles:       articleSvc,
		Contact:        contactSvc,
		Tokens:         tokens,
		Limiter:        limiter,
		Logger:         logger,
		Metrics:        metrics,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	var handler http.Handler = server
	if otelCfg.Enabled {
		handler = otelhttp.NewHandler(server, "thoughtnest-api")
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.RegisterServer("api server", httpServer)

	// Health and metrics
	health := observability.NewHealthChecker(db, rdb)
	health.SetVersion(version)
	if cfg.Storage.ObjectStore.Backend != config.ObjectStoreNone && cfg.Storage.ObjectStore.Backend != "" {
		health.AddCheck("object_store", objects.HealthCheck)
	}
	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdown.RegisterServer("health server", healthServer)

	var sweeper *janitor.Janitor
	if cfg.Janitor.Enabled {
		sweeper = janitor.New(userStore, janitor.Options{
			Schedule: cfg.Janitor.Schedule,
			Metrics:  metrics,
			Logger:   logger,
		})
		if err := sweeper.Start(); err != nil {
			shutdownQuietly(shutdown)
			return err
		}
		shutdown.Register("janitor", sweeper.Stop)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(map[string]interface{}{
			"addr":    httpServer.Addr,
			"version": version,
		}).Info("Starting ThoughtNest API server")
		return serve(httpServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	g.Go(func() error {
		reportDBStats(gctx, db, metrics)
		return nil
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	return g.Wait()
}

// serve runs srv until it is shut down.
func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

func reportDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		metrics.UpdateDBStats(db.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func shutdownQuietly(sm *observability.ShutdownManager) {
	_ = sm.Shutdown()
}
