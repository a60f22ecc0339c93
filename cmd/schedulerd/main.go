package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"procedure-scheduler-backend/config"
	"procedure-scheduler-backend/internal/api"
	"procedure-scheduler-backend/internal/db"
	"procedure-scheduler-backend/internal/engine"
	"procedure-scheduler-backend/internal/mw"
	"procedure-scheduler-backend/internal/runner"
	"procedure-scheduler-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "scheduler-backend ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	webpushOptions := runner.PushOptions(&cfg.Push)
	var notifier *runner.Notifier
	if webpushOptions != nil {
		notifier = runner.NewNotifier(webpushOptions)
	} else {
		logger.Println("VAPID keys not configured, async completion pushes are disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	scheduler := engine.NewScheduler(runner.EngineOptions(&cfg.Scheduler), nil)
	pool := runner.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, scheduler, runner.NewRegistry(cfg.Runs.TTL), notifier)
	pool.Start(ctx)
	logger.Printf("worker pool started with %d workers", cfg.WorkerPool.Size)

	handler := api.NewHandler(appStore, pool, mw.NewResponseCache(cfg.Server.CacheTTL), webpushOptions, cfg.Scheduler.Location)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	cancel()

	logger.Println("Server gracefully stopped")
}
