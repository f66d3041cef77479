package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/config"
	"github.com/BuzzLyutic/task-sync/internal/handler"
	"github.com/BuzzLyutic/task-sync/internal/notify"
	"github.com/BuzzLyutic/task-sync/internal/repo"
	"github.com/BuzzLyutic/task-sync/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	var taskRepo repo.TaskRepository
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to the database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("Failed to ping the database", zap.Error(err))
		}
		logger.Info("Connected to the database")
		taskRepo = repo.NewTaskRepo(pool)
	case config.BackendMemory:
		mem := repo.NewMemoryRepo()
		if cfg.SeedDemo {
			mem.SeedDemo()
		}
		taskRepo = mem
	default:
		logger.Fatal("Unknown store backend", zap.String("backend", cfg.StoreBackend))
	}

	var broker notify.Broker = notify.NewHub(logger)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Could not connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}

		rb := notify.NewRedisBroker(rdb, notify.DefaultChannel, logger)
		if err := rb.Start(ctx); err != nil {
			logger.Fatal("Could not subscribe to Redis", zap.Error(err))
		}
		defer rb.Close()
		broker = rb
	}

	taskService := service.NewTaskService(taskRepo, broker, logger)
	r := handler.Routes(
		handler.NewTaskHandler(taskService, logger),
		handler.NewEventsHandler(broker, logger),
		middleware.Logger,
	)

	srv := http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /api/events connections are long-lived.
	}

	go func() {
		logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
