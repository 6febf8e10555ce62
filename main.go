package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"stayhub/realtime-service/config"
	"stayhub/realtime-service/db"
	"stayhub/realtime-service/handlers"
	"stayhub/realtime-service/middleware"
	"stayhub/realtime-service/services"
	"stayhub/realtime-service/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger()

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	// Presence mirror is optional: without Redis the registry still answers
	// every presence query in-process
	var mirror services.PresenceSink
	if cfg.RedisURL != "" {
		redisClient, err := services.NewRedisClient(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisClient.Close()
		mirror = services.NewPresenceMirror(redisClient, logger, cfg.PresenceTTL)
		logger.Info("Presence mirror enabled", "ttl", cfg.PresenceTTL.String())
	}

	// Initialize services
	registry := services.NewRegistry(logger, mirror)
	bus := services.NewEventBus(logger)
	stateMachine := services.NewStateMachine(cfg.AllowSelfVerify)

	translator := services.NewTranslator(registry, logger)
	translator.Start(bus)

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(registry, logger, cfg.JWTSecret)
	presenceHandler := handlers.NewPresenceHandler(registry, logger)
	taskHandler := handlers.NewTaskHandler(database, stateMachine, bus, logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// WebSocket endpoint (credential verified inside the handler)
	router.GET("/ws", wsHandler.Serve)

	// Presence queries for health/metrics consumers
	presence := router.Group("/presence")
	{
		presence.GET("/status", presenceHandler.GetStatus)
		presence.GET("/online", presenceHandler.GetOnline)
	}

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTSecret))
	{
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.CreateTask)
			tasks.PUT("/:id/status", taskHandler.Transition)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting Realtime Service", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
