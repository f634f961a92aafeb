package main

import (
	"context"
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
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/cache"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/handlers"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/tiers"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "poll-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadEnvFiles(); err != nil {
		logger.Warn("env file load failed", "err", err)
	}
	port, err := config.Port("PORT", "8083")
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
	repo := storage.NewPollRepository(pool, outboxRepo)
	entRepo := storage.NewEntitlementRepository(pool)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	if brokers != "" {
		consumer := kafkax.NewConsumer(logger, kafkax.NewPgInbox(pool), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "poll-service"),
			Topics:  []string{tiers.TopicSubscriptionActivated, tiers.TopicSubscriptionCanceled},
		}, tiers.Handler(entRepo, logger))
		go consumer.Run(ctx)
	} else {
		logger.Warn("subscription consumer disabled (no kafka brokers configured)")
	}

	var remote tiers.Remote
	if addr := config.String("BILLING_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{})
		if err != nil {
			logger.Error("billing grpc dial failed; tier lookups use the local cache only", "err", err)
		} else {
			defer conn.Close()
			remote = entitlements.NewClient(conn)
			logger.Info("entitlements rpc enabled", "addr", addr)
		}
	}
	resolver := tiers.NewResolver(entRepo, remote, logger, config.Seconds("ENTITLEMENTS_TIMEOUT_SECONDS", 2*time.Second))

	var results cache.Results = cache.Noop{}
	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		results = cache.NewRedis(rdb, config.Seconds("RESULTS_CACHE_TTL_SECONDS", 10*time.Minute), "whenmeet:")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("results cache enabled (redis)", "redis_addr", addr)
	}

	pollHandler := handlers.NewPollHandler(repo, resolver, tzclock.New(), results, logger,
		config.String("PUBLIC_BASE_URL", "http://localhost:8080"))

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	pollHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "poll")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
