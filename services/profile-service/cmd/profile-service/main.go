package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/waypoint-social/waypoint/libs/cache"
	"github.com/waypoint-social/waypoint/libs/config"
	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/httpx"
	"github.com/waypoint-social/waypoint/libs/kafkax"
	otelx "github.com/waypoint-social/waypoint/libs/otel"
	"github.com/waypoint-social/waypoint/libs/outbox"
	"github.com/waypoint-social/waypoint/libs/runtime"
	"github.com/waypoint-social/waypoint/services/profile-service/internal/app"
	"github.com/waypoint-social/waypoint/services/profile-service/internal/handlers"
	"github.com/waypoint-social/waypoint/services/profile-service/internal/storage"
)

func main() {
	cfg, err := config.Load("profile-service")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	rdb, err := cache.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	defer func() { _ = rdb.Close() }()
	redisCache := cache.NewRedisCache(rdb)

	profileRepo := storage.NewProfileRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	txManager := db.NewTxManager(pool)
	service := app.NewService(profileRepo, outboxRepo, txManager, redisCache, logger)

	producer := kafkax.NewProducer(kafkax.ProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	defer func() { _ = producer.Close() }()

	relay := outbox.NewRelay(outboxRepo, producer, logger, outbox.RelayConfig{
		BatchSize:       cfg.OutboxBatchSize,
		PollingInterval: cfg.OutboxPolling(),
	})
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	// The invalidation worker drops cached reads whenever any service
	// publishes a mutation for the aggregate.
	consumer := kafkax.NewConsumer(kafkax.ConsumerConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.KafkaGroupID,
		Topic:          cfg.KafkaTopic,
		MaxConcurrency: cfg.CacheConcurrency,
	}, logger)
	worker := cache.NewWorker(consumer, redisCache, logger)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil {
			logger.Error("cache worker stopped with error", "err", err)
		}
	}()

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	)
	handlers.New(service).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           otelhttp.NewHandler(handler, "profile"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	<-relayDone
	<-workerDone
	logger.Info("profile service stopped")
}
