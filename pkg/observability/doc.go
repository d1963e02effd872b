// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health checks for ssobridge.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("issuer", issuerURL).Warn("sso callback failed")
//
// Request-scoped logging:
//
//	observability.FromContext(r.Context()).WithError(err).Error("token validation failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.TokensIssuedTotal.Inc()
//	metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
//	metrics.PartnerCallsTotal.WithLabelValues("validate", "unreachable").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
