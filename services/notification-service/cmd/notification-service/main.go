package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/config"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/libs/kafkax"
	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
	"github.com/md-rashed-zaman/whenmeet/libs/runtime"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/dispatch"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/render"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadEnvFiles(); err != nil {
		logger.Warn("env file load failed", "err", err)
	}
	port, err := config.Port("PORT", "8085")
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
	notifications := storage.NewRepository(pool, outboxRepo)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@whenmeet.local"),
	)
	var webhookSender webhook.Sender = webhook.NewHTTPSender(
		config.String("WEBHOOK_TOKEN", ""),
		config.Seconds("WEBHOOK_TIMEOUT_SECONDS", 5*time.Second),
	)
	if strings.ToLower(config.String("WEBHOOK_PROVIDER", "http")) == "noop" {
		webhookSender = webhook.NoopSender{}
	}

	dispatcher := dispatch.New(emailSender, webhookSender,
		render.New(tzclock.New(), config.Int("NOTIFY_MAX_SLOTS", render.DefaultMaxSlots), logger),
		notifications, logger,
		dispatch.Config{FailSuffix: config.String("NOTIFICATION_FAIL_SUFFIX", "")},
	)
	consumer := kafkax.NewConsumer(logger, kafkax.NewPgInbox(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  []string{events.TopicResponseSubmitted, events.TopicDigestDue},
	}, dispatcher.Handle)
	go consumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
