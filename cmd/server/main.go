// Package main provides the HTTP trigger surface for the grading
// orchestrator: accept a batch, report its status, accept interrupt
// responses, and stream progress over a websocket. The actual stage graph
// runs in the worker process (cmd/worker); this binary only enqueues.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokle/internal/config"
	redisrepo "brokle/internal/infrastructure/repository/redis"

	"brokle/internal/infrastructure/database"
	"brokle/internal/infrastructure/dispatch"
	httptransport "brokle/internal/transport/http"
	"brokle/internal/transport/http/middleware"
	"brokle/pkg/logging"
	"brokle/pkg/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	// The HTTP surface only mints and enqueues batches; Postgres-backed
	// grading persistence is owned by the worker process that actually
	// runs the orchestrator (cmd/worker).
	redisDB, err := database.NewRedisDB(cfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisDB.Close()

	streamDispatcher := redisrepo.NewStreamDispatcher(redisDB, cfg.Redis.StreamName, cfg.Redis.ConsumerGroup, logger)
	jobQueue := dispatch.NewQueue(streamDispatcher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := jobQueue.EnsureGroup(ctx); err != nil {
		log.Fatalf("failed to ensure consumer group: %v", err)
	}
	cancel()

	checkpointer := redisrepo.NewCheckpointer(redisDB)

	hub := websocket.NewHub(logger)
	go hub.Run()

	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	server := httptransport.NewServer(cfg, logger, jobQueue, checkpointer, hub, authMW)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}
