package main

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/config"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
	"github.com/md-rashed-zaman/whenmeet/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadEnvFiles(); err != nil {
		logger.Warn("env file load failed", "err", err)
	}
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.SetupFromEnv(ctx, service)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	}
	defer otelShutdown()

	mux := runtime.NewBaseMuxWithReady()
	routes := routeConfig{
		PollURL:    mustParseURL(config.String("POLL_URL", "http://poll-service:8083")),
		BillingURL: mustParseURL(config.String("BILLING_URL", "http://billing-service:8084")),
		JWTSecret:  config.String("JWT_SECRET", "dev-secret"),
		Transport:  otelhttp.NewTransport(http.DefaultTransport),
	}
	if raw := config.String("AUTH_URL", ""); raw != "" {
		routes.AuthURL = mustParseURL(raw)
	}
	if raw := config.String("ANALYTICS_URL", ""); raw != "" {
		routes.AnalyticsURL = mustParseURL(raw)
	}
	registerRoutes(mux, routes)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key,X-Admin-Token,X-Edit-Token,X-Poll-Password"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 600*time.Second),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
