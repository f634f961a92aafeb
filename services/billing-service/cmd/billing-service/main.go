package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/config"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/libs/grpcx"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/libs/kafkax"
	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
	"github.com/md-rashed-zaman/whenmeet/libs/runtime"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/handlers"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/reconcile"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/subscriptions"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/tierserver"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "billing-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadEnvFiles(); err != nil {
		logger.Warn("env file load failed", "err", err)
	}
	port, err := config.Port("PORT", "8084")
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
	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository()
	subSvc := subscriptions.New(repo, outboxRepo)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	stripeKey := config.String("STRIPE_SECRET_KEY", "")
	h := handlers.New(repo, subSvc, logger, handlers.Config{
		StripeWebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: config.Seconds("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300*time.Second),
		StripeSecretKey:        stripeKey,
		StripePricePremium:     config.String("STRIPE_PRICE_PREMIUM", ""),
		CheckoutSuccessURL:     config.String("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:      config.String("CHECKOUT_CANCEL_URL", ""),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	h.Register(mux)

	if config.Bool("BILLING_STRIPE_RECONCILE_ENABLED", false) {
		rec := reconcile.NewStripeReconciler(pool, repo, subSvc, logger, reconcile.StripeReconcilerConfig{
			StripeSecretKey: stripeKey,
			BatchSize:       config.Int("BILLING_STRIPE_RECONCILE_BATCH_SIZE", 50),
			AdvisoryLockKey: int64(config.Int("BILLING_STRIPE_RECONCILE_LOCK_KEY", 4242001)),
		})
		go rec.Run(ctx, config.Seconds("BILLING_STRIPE_RECONCILE_INTERVAL_SECONDS", 5*time.Minute))
	}

	grpcPort, err := config.Port("GRPC_PORT", "9091")
	if err != nil {
		panic(err)
	}
	if err := startGrpcServer(ctx, logger, repo, grpcPort); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "billing")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}

func startGrpcServer(ctx context.Context, logger *slog.Logger, repo *storage.Repository, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	srv := grpcx.NewServer()
	entitlements.RegisterTierServer(srv, tierserver.New(repo, logger))

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	return nil
}
