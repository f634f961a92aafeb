package main

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/config"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/libs/kafkax"
	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
	"github.com/md-rashed-zaman/whenmeet/libs/runtime"
	"github.com/md-rashed-zaman/whenmeet/services/analytics-service/internal/handlers"
	"github.com/md-rashed-zaman/whenmeet/services/analytics-service/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	logger := runtime.NewLogger(service)
	if err := runtime.LoadEnvFiles(); err != nil {
		logger.Warn("env file load failed", "err", err)
	}
	port, err := config.Port("PORT", "8086")
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
	h := handlers.New(metrics.NewRepository(pool), logger)
	consumer := kafkax.NewConsumer(logger, kafkax.NewPgInbox(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topics:  metrics.Topics(),
	}, h.Consume)
	go consumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	h.Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
