// Package observability provides structured logging, Prometheus metrics,
// health checks, graceful shutdown, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("article_id", id).Info("article published")
//
// Request handlers use FromContext, which attaches request_id, user_id
// and, when a span is recording, trace_id and span_id:
//
//	observability.FromContext(r.Context()).WithError(err).Error("upload failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// HTTP series are labelled by mux route template, not raw path.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	checker.AddCheck("object_store", store.Check)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// The database is required for readiness. Redis and added checks only
// degrade the reported status.
//
// # Shutdown
//
// ShutdownManager runs registered steps in reverse order under one
// timeout:
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	sm.Register("database", func(context.Context) error { return db.Close() })
//	sm.RegisterServer("api", server)
//	defer sm.Shutdown()
package observability
