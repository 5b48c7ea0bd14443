package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"docatlas/internal/ai"
	"docatlas/internal/config"
	"docatlas/internal/crawler"
	"docatlas/internal/gcs"
	"docatlas/internal/logger"
	"docatlas/internal/queue"
	"docatlas/internal/store"
	"docatlas/internal/telemetry"
	"docatlas/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("docatlas-worker")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	ctx := context.Background()

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

	chunker, err := services.NewChunkerService(cfg.ChunkMaxTokens, cfg.ChunkOverlap, cfg.WhitespaceChunkSize, cfg.WhitespaceChunkOverlap)
	if err != nil {
		log.Fatal("Failed to create chunker:", err)
	}

	fetcher := crawler.NewFetcher(
		cfg.URLFetchRetries,
		time.Duration(cfg.URLFetchBackoffBase)*time.Second,
		time.Duration(cfg.PoliteDelaySeconds)*time.Second,
	)

	extractor := services.NewExtractorService(gemini)
	ingest := services.NewIngestService(st, gateway, extractor, chunker, embedder, fetcher, cfg.ProcessedBucket)

	// Periodic 3-D projection refresh
	cron := services.NewCronService()
	if cfg.ReducerIntervalMin > 0 {
		reducer := services.NewReducerService(st, cfg.ReducerSeed)
		interval := time.Duration(cfg.ReducerIntervalMin) * time.Minute
		if err := cron.ScheduleReducer(reducer, interval); err != nil {
			log.Fatal("Failed to schedule reducer:", err)
		}
		cron.Start()
		defer cron.Stop()
	}

	server := asynq.NewServer(
		cfg.AsynqRedisOpt(),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueIngest: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(st, ingest)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting worker",
		"concurrency", cfg.WorkerConcurrency,
		"queue", queue.QueueIngest,
		"redis", cfg.RedisURL)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
