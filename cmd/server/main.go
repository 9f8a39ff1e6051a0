package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dvorinka/Trackeep-sub002/internal/config"
	"github.com/Dvorinka/Trackeep-sub002/internal/database"
	"github.com/Dvorinka/Trackeep-sub002/internal/handlers"
	"github.com/Dvorinka/Trackeep-sub002/internal/middleware"
	"github.com/Dvorinka/Trackeep-sub002/internal/models"
	"github.com/Dvorinka/Trackeep-sub002/internal/routes"
	"github.com/Dvorinka/Trackeep-sub002/internal/ws"
	"github.com/Dvorinka/Trackeep-sub002/pkg/logger"
)

func main() {
	// 0. Load Config & Initialize Logger
	config.LoadConfig()

	// Environment-based logger initialization (production = JSON, development = pretty)
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}
	logger.Init(env)

	logger.Info().Str("environment", env).Msg("Starting Trackeep Messaging Backend...")

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. Connect Database & Redis
	database.Connect()
	database.InitRedis()

	// --- Database Migration Stage ---
	logger.Info().Msg("Running Database Migrations (Stage 1: Tables)...")

	// Disable FK constraints first so circular references migrate cleanly
	database.DB.Config.DisableForeignKeyConstraintWhenMigrating = true

	tableModels := []interface{}{
		&models.User{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.MessageAttachment{},
		&models.MessageReference{},
		&models.MessageReaction{},
		&models.MessageSuggestion{},
		&models.VaultItem{},
		&models.VaultItemShare{},
	}

	for _, m := range tableModels {
		if err := database.DB.AutoMigrate(m); err != nil {
			logger.Fatal().Err(err).Msgf("Failed to migrate table for %T", m)
		}
	}

	logger.Info().Msg("Running Database Migrations (Stage 2: Constraints)...")
	database.DB.Config.DisableForeignKeyConstraintWhenMigrating = false
	if err := database.DB.AutoMigrate(tableModels...); err != nil {
		logger.Fatal().Err(err).Msg("Failed to add database constraints")
	}
	logger.Info().Msg("Database Migrations Complete")

	// 2. Vault sealing key
	if err := handlers.InitVault(config.AppConfig.VaultMasterKey); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize vault sealing key")
	}

	// 3. Setup Router
	r := gin.New()

	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	// Exempt the websocket endpoint from the general rate limiter
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/api/messaging/ws" {
			c.Next()
			return
		}
		middleware.GeneralRateLimit()(c)
	})

	// 4. Websocket hub
	hub := ws.InitHub()

	// 5. Register Routes
	api := r.Group("/api")
	{
		routes.RegisterMessagingRoutes(api)
		routes.RegisterVaultRoutes(api)
		api.GET("/messaging/ws", hub.Handler())
	}

	// Health check with DB and Redis status
	r.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		redisStatus := "ok"

		sqlDB, err := database.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			dbStatus = "error"
		}

		if database.Redis != nil {
			if _, err := database.Redis.Ping(context.Background()).Result(); err != nil {
				redisStatus = "error"
			}
		} else {
			redisStatus = "not configured"
		}

		status := "ok"
		if dbStatus != "ok" || (redisStatus != "ok" && redisStatus != "not configured") {
			status = "degraded"
		}

		c.JSON(200, gin.H{
			"status":  status,
			"message": "Trackeep Messaging Backend is running",
			"checks": gin.H{
				"database": dbStatus,
				"redis":    redisStatus,
			},
		})
	})

	// 6. Start Server with graceful shutdown
	port := config.AppConfig.Port
	if port == "" {
		port = "8080"
	}

	// No global read/write timeouts: the messaging websocket is long-lived
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", port).Str("env", env).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
