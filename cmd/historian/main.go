// cmd/historian/main.go drains the action queue into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/dealroom/internal/cache"
	"github.com/jason-s-yu/dealroom/internal/config"
	"github.com/jason-s-yu/dealroom/internal/database"
	"github.com/jason-s-yu/dealroom/internal/database/migrations"
	"github.com/jason-s-yu/dealroom/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(config.GetEnv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connStr := database.ConnString()
	if err := migrations.Migrate(connStr); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}
	pool, err := database.ConnectDB(ctx, connStr)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer pool.Close()

	rdb, err := cache.ConnectRedis(ctx, config.GetEnv("REDIS_ADDR", "localhost:6379"), config.GetEnvInt("REDIS_DB", 0))
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	svc := historian.NewService(rdb, &historian.PGStore{Pool: pool}, historian.Config{
		Queue:      config.GetEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName),
		BatchSize:  config.GetEnvInt("HISTORIAN_BATCH_SIZE", 20),
		FlushDelay: config.GetEnvDuration("HISTORIAN_FLUSH_INTERVAL", 0),
		Inactivity: config.GetEnvDuration("GAME_INACTIVITY_TIMEOUT", 0),
	}, logger)
	svc.Run(ctx)
}
