package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bazaar/internal/cache"
	"bazaar/internal/config"
	"bazaar/internal/events"
	"bazaar/internal/http/handlers"
	applog "bazaar/internal/log"
	"bazaar/internal/metrics"
	"bazaar/internal/repos"
)

func main() {
	cfg := config.Load()

	logger, err := applog.Init(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.SeedDemo {
		if err := repos.SeedDemo(db); err != nil {
			return err
		}
	}

	var cartCache cache.CartCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, cart reads go to the database until it recovers", zap.Error(err))
		}
		cancel()
		cartCache = cache.NewRedisCache(rdb, cfg.CartCacheTTL, logger)
	}

	m := metrics.New()
	deps, err := handlers.NewDeps(db, cfg, cartCache, m, logger)
	if err != nil {
		return err
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers)
		defer pub.Close()
		poller := events.NewOutboxPoller(deps.TM, deps.Outbox, pub, time.Second, logger)
		go poller.Run(ctx)
		logger.Info("outbox relay started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.OrderTopic))
	} else {
		logger.Info("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	app := handlers.NewApp(deps, handlers.Limits{})

	errc := make(chan error, 1)
	go func() { errc <- app.Listen(":" + cfg.Port) }()
	logger.Info("listening", zap.String("port", cfg.Port))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
