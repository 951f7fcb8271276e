// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Info("Server started", "port", 8080)
//	logger.WithError(err).Error("Request failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.DecisionsTotal.WithLabelValues("document", "create", "allow").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, blobStore)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
// Tracing is exported over OTLP gRPC; see InitOTel and ShutdownOTel.
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
