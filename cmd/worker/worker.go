package main

import (
	"context"
	"log"
	"time"

	"document-qa-backend/internal/ai"
	"document-qa-backend/internal/config"
	"document-qa-backend/internal/database"
	"document-qa-backend/internal/logger"
	"document-qa-backend/internal/queue"
	"document-qa-backend/internal/telemetry"
	"document-qa-backend/internal/vectorstore"
	"document-qa-backend/services"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

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

	store := database.NewDocumentStore(mongoClient.Database(cfg.DBName))

	// The worker is the only index writer.
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

	// Summaries are a nice-to-have; no key just means no summaries.
	var summarizer services.Summarizer
	if cfg.GeminiAPIKey != "" {
		gs, err := services.NewGeminiSummarizer(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("Summarization disabled: %v", err)
		} else {
			defer gs.Close()
			summarizer = gs
		}
	}

	processor := services.NewProcessor(services.ProcessorOptions{
		Config:     cfg,
		Store:      store,
		Index:      index,
		Embedder:   embedder,
		Reranker:   ai.NewReranker(hfClient),
		Generator:  ai.NewGenerator(cfg.AnswerProvider, hfClient),
		Summarizer: summarizer,
		Metrics:    metrics,
	})

	redisOpt := config.AsynqRedisOpt(cfg)

	// Sweeper re-enqueues stuck documents: processing ones after a
	// worker crash mid-pipeline, pending ones whose enqueue was lost.
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.Every(cfg.StuckSweepMinutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ids, err := store.MarkStuckDocuments(ctx, time.Duration(cfg.StuckSweepMinutes)*time.Minute)
		if err != nil {
			log.Printf("Stuck document sweep failed: %v", err)
			return
		}
		for _, id := range ids {
			task, err := queue.NewDocumentProcessTask(id.Hex())
			if err != nil {
				log.Printf("Failed to build retry task for %s: %v", id.Hex(), err)
				continue
			}
			if _, err := queueClient.Enqueue(task); err != nil {
				log.Printf("Failed to re-enqueue document %s: %v", id.Hex(), err)
				continue
			}
			log.Printf("Re-enqueued stuck document: %s", id.Hex())
		}
	})
	scheduler.StartAsync()
	defer scheduler.Stop()

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task failed: %s, error: %v", task.Type(), err)
			}),
		},
	)

	taskProcessor := queue.NewTaskProcessor(processor)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentProcess, taskProcessor.HandleDocumentProcess)

	log.Println("Starting document processing worker...")
	log.Printf("   Concurrency: %d", cfg.WorkerConcurrency)
	log.Printf("   Stuck sweep interval: %dm", cfg.StuckSweepMinutes)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
