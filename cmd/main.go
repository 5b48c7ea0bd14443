package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"docatlas/internal/ai"
	"docatlas/internal/config"
	"docatlas/internal/gcs"
	"docatlas/internal/logger"
	"docatlas/internal/store"
	"docatlas/internal/telemetry"
	"docatlas/middleware"
	"docatlas/routes"
	"docatlas/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("docatlas")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	ctx := context.Background()

	// Connect to Postgres and make sure the schema is in place
	pool, err := config.ConnectPostgres(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}
	defer pool.Close()

	st := store.New(pool, cfg.VectorDim)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure schema:", err)
	}

	gateway, err := gcs.NewGateway(ctx, cfg.FileStorageDir)
	if err != nil {
		log.Fatal("Failed to create storage gateway:", err)
	}
	defer gateway.Close()

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GenerativeModel)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()

	embedder, err := ai.NewEmbedder(cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.VectorDim)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

	queueClient := asynq.NewClient(cfg.AsynqRedisOpt())
	defer queueClient.Close()

	retriever := services.NewRetrieverService(st, embedder, cfg.MaxContextChunks)
	refiner := services.NewRefineService(st, embedder, gemini, cfg.RefinementMaxIters)
	answerer := services.NewAnswerService(gemini, cfg.MaxContextChunks)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	// Rate limiting is best effort: without Redis the API still serves
	if rdb, err := config.ConnectRedis(cfg); err != nil {
		logger.Warn("Rate limiting disabled, Redis unavailable", "error", err)
	} else {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Setup routes
	routes.SetupIngestRoutes(router, st, gateway, queueClient)
	routes.SetupTaskRoutes(router, st)
	routes.SetupDocumentRoutes(router, st)
	routes.SetupQueryRoutes(router, st, retriever, refiner, answerer, cfg.RRFK)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
