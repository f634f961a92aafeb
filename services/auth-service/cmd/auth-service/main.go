package main

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/config"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/libs/kafkax"
	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
	"github.com/md-rashed-zaman/whenmeet/libs/runtime"
	"github.com/md-rashed-zaman/whenmeet/services/auth-service/internal/handlers"
	"github.com/md-rashed-zaman/whenmeet/services/auth-service/internal/sessions"
	"github.com/md-rashed-zaman/whenmeet/services/auth-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadEnvFiles(); err != nil {
		logger.Warn("env file load failed", "err", err)
	}
	port, err := config.Port("PORT", "8081")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	authHandler := handlers.NewAuthHandler(
		storage.NewUserRepository(pool, outboxRepo),
		sessions.NewRefreshRepository(pool),
		logger,
		handlers.Config{
			JWTSecret:   jwtSecret,
			AccessTTL:   config.Seconds("ACCESS_TTL_SECONDS", 15*time.Minute),
			RefreshTTL:  time.Duration(config.Int("REFRESH_TTL_HOURS", 720)) * time.Hour,
			AdminEmails: config.List("ADMIN_EMAILS", ""),
		},
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	authHandler.Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
