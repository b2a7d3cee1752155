// Command corkboard runs the chat server.
//
// Wiring order:
//  1. config
//  2. logger
//  3. database (migrations + seed)
//  4. repositories
//  5. hub, optional Redis relay, optional Kafka sink
//  6. services and hub callbacks
//  7. handlers and routes
//  8. CORS, HTTP server, graceful shutdown
//
// There are no globals; everything is built here and passed down.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/akinalp/corkboard/config"
	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/events"
	"github.com/akinalp/corkboard/pkg/logger"
	"github.com/akinalp/corkboard/relay"
	"github.com/akinalp/corkboard/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "corkboard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("corkboard starting", zap.Int("port", cfg.Server.Port))

	// 3. Database
	db, err := database.New(cfg.Database.Path, database.Migrations(), log.Named("database"))
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer db.Close()

	// 4. Repositories
	repos := initRepositories(db.Conn)

	// 5. Hub, relay, sink
	hub := ws.NewHub(log.Named("ws"))
	go hub.Run()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var (
		redisClient *redis.Client
		redisRelay  *relay.Redis
	)
	if cfg.Redis.Enabled {
		redisClient, err = relay.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		redisRelay = relay.NewRedis(redisClient, cfg.Redis.Channel, log.Named("relay"))
		if err := redisRelay.Subscribe(ctx, hub); err != nil {
			return fmt.Errorf("failed to subscribe relay: %w", err)
		}
		hub.SetRelay(redisRelay)
		log.Info("broadcast relay enabled", zap.String("channel", cfg.Redis.Channel))
	}

	var sink events.Sink = events.NopSink{}
	if cfg.Kafka.Enabled {
		sink = events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("events"))
		log.Info("message events enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	// 6. Services
	svcs, bg := initServices(db.Conn, repos, hub, sink, cfg, log)
	registerHubCallbacks(hub, svcs, log.Named("ws"))

	// 7. Handlers and routes
	h := initHandlers(svcs, db, hub, cfg)
	mux := http.NewServeMux()
	initRoutes(mux, h, svcs, log.Named("http"))

	// 8. CORS and server
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
	case err := <-serveErr:
		log.Error("server error", zap.Error(err))
	}
	log.Info("shutting down")

	// Websocket clients go first so they see the close frame, then the HTTP
	// server drains in-flight requests.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}

	svcs.Message.Flush()
	if err := sink.Close(); err != nil {
		log.Warn("failed to close event sink", zap.Error(err))
	}
	if redisRelay != nil {
		if err := redisRelay.Close(); err != nil {
			log.Warn("failed to close relay", zap.Error(err))
		}
		redisClient.Close()
	}
	bg.Stop()

	log.Info("server stopped gracefully")
	return nil
}
