package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"document-qa-backend/internal/ai"
	"document-qa-backend/internal/config"
	"document-qa-backend/internal/database"
	"document-qa-backend/internal/logger"
	"document-qa-backend/internal/telemetry"
	"document-qa-backend/internal/vectorstore"
	"document-qa-backend/middleware"
	"document-qa-backend/routes"
	"document-qa-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing is best-effort: a missing collector should not stop
	// the API.
	shutdownTracer, err := telemetry.InitTracer("document-qa-backend")
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	store := database.NewDocumentStore(mongoClient.Database(cfg.DBName))

	// The worker owns index writes; the API opens the same artifacts
	// read-mostly and reloads when they change on disk.
	index, err := vectorstore.NewFlatIndex(cfg.IndexDir, cfg.VectorDim)
	if err != nil {
		log.Fatal("Failed to open vector index:", err)
	}

	hfClient := ai.NewHFClient(ai.HFOptions{
		Token:         cfg.HFToken,
		EmbeddingsURL: cfg.HFEmbeddingsURL,
		SimilarityURL: cfg.HFSimilarityURL,
		ChatURL:       cfg.HFChatURL,
		ChatModel:     cfg.HFChatModel,
		Timeout:       time.Duration(cfg.HFTimeoutSeconds) * time.Second,
	})

	embedder := ai.NewEmbedder(ai.EmbedderOptions{
		Provider:      cfg.EmbeddingsProvider,
		Dimension:     cfg.VectorDim,
		HFClient:      hfClient,
		MaxEmbedChars: cfg.MaxEmbedChars,
	})

	cache := services.NewAnswerCache(rdb, time.Duration(cfg.AnswerCacheTTL)*time.Second)

	processor := services.NewProcessor(services.ProcessorOptions{
		Config:    cfg,
		Store:     store,
		Index:     index,
		Embedder:  embedder,
		Reranker:  ai.NewReranker(hfClient),
		Generator: ai.NewGenerator(cfg.AnswerProvider, hfClient),
		Cache:     cache,
		Metrics:   metrics,
	})

	queueClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer queueClient.Close()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		metrics.RecordIndexSize(int64(index.Count()))
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"timestamp":  time.Now(),
			"index_size": index.Count(),
		})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg)
	routes.SetupDocumentRoutes(router, cfg, store, processor, queueClient, cache, authMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
