package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales_aggregator/api"
	"sales_aggregator/internal/config"
	"sales_aggregator/internal/events"
	"sales_aggregator/internal/logger"
	"sales_aggregator/internal/sales"
	"sales_aggregator/internal/scheduler"
	"sales_aggregator/internal/storage/postgres"
	"sales_aggregator/internal/storage/redis"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("error loading config: %v", err))
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(fmt.Errorf("error building logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open aggregate store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	service := sales.NewService(store, log)
	dispatcher := events.NewDispatcher(service, log, cfg.AckOnFailure)
	resetJob := sales.NewResetJob(store, log, cfg.ResetBatchSize)

	sched, err := scheduler.New(cfg.ResetSchedule, resetJob, cfg.ResetTimeout, log)
	if err != nil {
		log.Fatal("invalid reset schedule", zap.Error(err))
	}
	sched.Start(ctx)

	consumerDone := make(chan struct{})
	if cfg.ConsumerEnabled {
		consumer := events.NewConsumer(events.ConsumerConfig{
			URL:      cfg.RabbitURL,
			Exchange: cfg.RabbitExchange,
			Queue:    cfg.RabbitQueue,
			Prefetch: cfg.RabbitPrefetch,
		}, dispatcher, log)
		go func() {
			defer close(consumerDone)
			consumer.Start(ctx)
		}()
	} else {
		close(consumerDone)
	}

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	api.InitRoutes(r, api.Deps{
		Storage:    store,
		Dispatcher: dispatcher,
		ResetJob:   resetJob,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("error trying to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}

	// the store closes on return; let the in-flight delivery finish first
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("consumer did not stop before shutdown timeout")
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (sales.Storage, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ready(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres not ready: %w", err)
		}
		if err := db.RunMigration(ctx, cfg.MigrationPath); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewStore(db), db.Close, nil

	case config.DriverRedis:
		rs := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err := rs.Client.Ping(ctx).Err(); err != nil {
			_ = rs.Client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return rs, func() { _ = rs.Client.Close() }, nil

	default:
		log.Warn("using in-memory aggregate store; data is lost on restart")
		return sales.NewLocalStorage(), func() {}, nil
	}
}
