package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"rag-knowledge-backend/internal/config"
	"rag-knowledge-backend/internal/ingest"
	"rag-knowledge-backend/internal/logger"
	"rag-knowledge-backend/internal/queue"
	"rag-knowledge-backend/internal/storage"
	"rag-knowledge-backend/internal/telemetry"
	"rag-knowledge-backend/internal/vectorindex"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	appLog := logger.New(cfg.GinMode == "debug")

	shutdownTracer, err := telemetry.InitTracer("rag-knowledge-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to init tracer:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
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
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	objects, err := storage.NewDiskStore(cfg.FileStorageDir)
	if err != nil {
		log.Fatal("Failed to init object store:", err)
	}

	index := vectorindex.New(vectorindex.Config{
		BaseURL:           cfg.IndexURL,
		APIKey:            cfg.IndexAPIKey,
		BatchSize:         cfg.IndexBatchSize,
		RequestsPerSecond: cfg.IndexRPS,
	})

	docs := ingest.NewMongoDocumentStore(db)
	jobs := ingest.NewMongoJobStore(db)
	cancels := ingest.NewRedisCancelFlags(rdb)
	fetcher := ingest.NewHTTPFetcher(30 * time.Second)

	coordinator := ingest.NewCoordinator(docs, jobs, objects, index, cancels, fetcher, ingest.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, appLog).WithMetrics(metrics)

	// Fail jobs whose worker died mid-run.
	reaper := ingest.NewReaper(jobs, 5*time.Minute, time.Duration(cfg.JobMaxAge)*time.Minute, appLog)
	reaper.Start()
	defer reaper.Stop()

	addr, password, redisDB := cfg.AsynqRedisOpt()
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: addr, Password: password, DB: redisDB},
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueIngest: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				appLog.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, coordinator.HandleIngest)

	appLog.Info("starting ingestion worker",
		"concurrency", cfg.WorkerConcurrency,
		"redis", addr,
	)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
