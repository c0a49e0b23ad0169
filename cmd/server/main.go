// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/dealroom/internal/auth"
	"github.com/jason-s-yu/dealroom/internal/cache"
	"github.com/jason-s-yu/dealroom/internal/config"
	"github.com/jason-s-yu/dealroom/internal/deck"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/handlers"
	"github.com/jason-s-yu/dealroom/internal/middleware"
	"github.com/jason-s-yu/dealroom/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(config.GetEnv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(lvl)
	}
	if config.GetEnv("LOG_FORMAT", "text") == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if priv, pub := os.Getenv("AUTH_PRIVATE_KEY_PATH"), os.Getenv("AUTH_PUBLIC_KEY_PATH"); priv != "" && pub != "" {
		if err := auth.InitFromPath(priv, pub); err != nil {
			logger.WithError(err).Fatal("failed to load auth keys")
		}
	} else if err := auth.Init(); err != nil {
		logger.WithError(err).Fatal("failed to init auth")
	}

	rules, err := config.LoadRules()
	if err != nil {
		logger.WithError(err).Fatal("invalid rules configuration")
	}
	// a catalog naming an effect the engine cannot resolve is a deployment error
	if err := deck.Validate(deck.StandardCatalog(), game.KnownEffects()); err != nil {
		logger.WithError(err).Fatal("card catalog failed validation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := room.NewManager(logger, rules)
	mgr.Seed = int64(config.GetEnvInt("DEALROOM_SEED", 0))
	mgr.ResponseTimeout = config.GetEnvDuration("RESPONSE_TIMEOUT", room.DefaultResponseTimeout)
	mgr.IdleTimeout = config.GetEnvDuration("ROOM_IDLE_TIMEOUT", room.DefaultIdleTimeout)

	publisherDone := make(chan struct{})

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb, err := cache.ConnectRedis(ctx, addr, config.GetEnvInt("REDIS_DB", 0))
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, action history disabled")
			close(publisherDone)
		} else {
			defer rdb.Close()
			pub := cache.NewPublisher(rdb, config.GetEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName), config.GetEnvInt("HISTORIAN_BUFFER", 1024), logger)
			mgr.OnAction = pub.PublishEntry
			go func() {
				pub.Run(ctx)
				close(publisherDone)
			}()
			logger.WithField("addr", addr).Info("publishing action history to redis")
		}
	} else {
		close(publisherDone)
	}

	wsOpts := handlers.WSOptions{
		RateLimit:    rate.Limit(config.GetEnvInt("WS_RATE_LIMIT", 10)),
		RateBurst:    config.GetEnvInt("WS_RATE_BURST", 20),
		OutboxSize:   config.GetEnvInt("WS_OUTBOX_SIZE", 64),
		PingInterval: config.GetEnvDuration("WS_PING_INTERVAL", 30*time.Second),
	}
	origins := []string{"https://*", "http://*"}
	if allowed := os.Getenv("ALLOWED_ORIGINS"); allowed != "" {
		origins = strings.Split(allowed, ",")
		wsOpts.OriginPatterns = hostPatterns(origins)
	}

	mux := handlers.NewRouter(mgr, middleware.LogMiddleware(logger), handlers.RoomWSHandler(logger, mgr, wsOpts))

	var h http.Handler = mux
	h = cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
	h = chimw.Recoverer(h)
	h = chimw.RealIP(h)

	addr := ":" + config.GetEnv("PORT", "8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server exited")
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("graceful shutdown failed")
		}
		select {
		case <-publisherDone:
		case <-shutdownCtx.Done():
			logger.Warn("action history not fully flushed")
		}
	}
}

// hostPatterns strips schemes so CORS origins double as websocket origin patterns.
func hostPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
