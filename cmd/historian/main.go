// cmd/historian is an asynchronous historian service that pops game actions from a Redis queue
// and persists them to a PostgreSQL database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/njuka/internal/cache"
	"github.com/jason-s-yu/njuka/internal/config"
	"github.com/jason-s-yu/njuka/internal/database"
	"github.com/jason-s-yu/njuka/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("could not load configuration")
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("could not set up logger")
	}
	if cfg.Redis.Addr == "" || cfg.Postgres.DSN == "" {
		logger.Fatal("historian requires NJUKA_REDIS_ADDR and NJUKA_POSTGRES_DSN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Fatal("could not connect to redis")
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.WithError(err).Fatal("could not connect to postgres")
	}
	defer pool.Close()

	svc := historian.New(cache.NewRedisQueue(rdb, cfg.Redis.QueueName), database.NewActionStore(pool), logger, historian.Config{
		BatchSize:     cfg.Historian.BatchSize,
		FlushInterval: cfg.Historian.FlushInterval,
		Inactivity:    cfg.Historian.Inactivity,
		PopTimeout:    time.Second,
	})

	logger.WithField("queue", cfg.Redis.QueueName).Info("historian running")
	svc.Run(ctx)
	logger.Info("historian stopped")
}
