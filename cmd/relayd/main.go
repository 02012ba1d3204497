package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ANU-2524/JustCoding-sub000/internal/config"
	"github.com/ANU-2524/JustCoding-sub000/internal/database"
	"github.com/ANU-2524/JustCoding-sub000/internal/hub"
	"github.com/ANU-2524/JustCoding-sub000/internal/router"
)

func main() {
	logger := logrus.New()
	if os.Getenv("ENV") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger.Info("🚀 Starting JustCoding relay...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger.Info("✓ Environment variables loaded")

	// ──── Step 2: Connect Redis (optional) ────
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		var err error
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClient.Close()
		logger.Info("✓ Redis connected, cross-instance fan-out enabled")
	} else {
		logger.Info("✓ Running single-instance (no REDIS_URL)")
	}

	// ──── Step 3: Start Room Hub ────
	wsHub := hub.New(redisClient, logger)
	logger.Info("✓ Room hub started")

	// ──── Step 4: Start HTTP Server ────
	r := router.New(wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Infof("✓ JustCoding relay ready on http://localhost:%s", cfg.Port)
	logger.Infof("  WS: ws://localhost:%s/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatalf("Server error: %v", err)
	}
}
