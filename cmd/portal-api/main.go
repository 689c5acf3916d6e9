package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/auth"
	"blue-carbon-registry/portal-backend/internal/config"
	"blue-carbon-registry/portal-backend/internal/credits"
	"blue-carbon-registry/portal-backend/internal/notifications"
	"blue-carbon-registry/portal-backend/internal/notifications/websocket"
	"blue-carbon-registry/portal-backend/internal/reports"
	"blue-carbon-registry/portal-backend/pkg/pdf"
	"blue-carbon-registry/portal-backend/pkg/storage"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Load .env before reading configuration
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on environment")
	}

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// Blob store for proof documents
	s3Client, err := storage.NewS3Client(ctx, storage.S3Options{
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		ForcePathStyle:  cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	// Report change publisher: redis when configured, in-process otherwise
	var publisher notifications.Publisher
	if cfg.Redis.URL != "" {
		redisPublisher, err := notifications.NewRedisPublisher(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		publisher = redisPublisher
	} else {
		logger.Warn("No redis configured, live updates limited to this process")
		publisher = notifications.NewMemoryPublisher()
	}
	defer publisher.Close()

	// Repositories and migrations
	reportsRepo := reports.NewPostgresRepository(db)
	if err := reportsRepo.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate reports schema", zap.Error(err))
	}
	creditsRepo := credits.NewPostgresRepository(db)
	if err := creditsRepo.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate credit ledger schema", zap.Error(err))
	}

	// Services
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	creditsService := credits.NewService(creditsRepo, logger)
	committer := reports.NewCommitter(s3Client, reportsRepo, cfg.Storage.Bucket, logger)
	reportsService := reports.NewService(
		reportsRepo, committer, publisher, creditsService, pdf.NewGenerator(),
		s3Client, cfg.Storage.Bucket, logger)

	// Live viewer hub
	wsManager := websocket.NewManager(logger)
	go func() {
		if err := wsManager.Run(ctx, publisher); err != nil {
			logger.Error("Viewer hub stopped", zap.Error(err))
		}
	}()
	defer wsManager.Shutdown()

	// Dashboard summary refresh job
	refresher := reports.NewSummaryRefresher(reportsService, "", logger)
	if err := refresher.Start(ctx); err != nil {
		logger.Fatal("Failed to start summary refresher", zap.Error(err))
	}
	defer refresher.Stop()

	// Handlers
	authHandler := auth.NewHandler(tokens, logger)
	reportsHandler := reports.NewHandler(reportsService, wsManager, logger)
	creditsHandler := credits.NewHandler(creditsService, logger)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	{
		auth.RegisterRoutes(api, authHandler, tokens)
		reportsHandler.RegisterRoutes(api, tokens)

		authed := api.Group("", auth.Middleware(tokens))
		creditsHandler.RegisterRoutes(authed)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"viewers":   wsManager.ConnectionCount(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
