package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"rag-knowledge-backend/internal/ai"
	"rag-knowledge-backend/internal/config"
	"rag-knowledge-backend/internal/ingest"
	"rag-knowledge-backend/internal/logger"
	"rag-knowledge-backend/internal/retrieval"
	"rag-knowledge-backend/internal/security"
	"rag-knowledge-backend/internal/storage"
	"rag-knowledge-backend/internal/telemetry"
	"rag-knowledge-backend/internal/vectorindex"
	"rag-knowledge-backend/middleware"
	"rag-knowledge-backend/routes"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	appLog := logger.New(cfg.GinMode == "debug")

	shutdownTracer, err := telemetry.InitTracer("rag-knowledge-backend", cfg.OTLPEndpoint)
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

	box, err := security.NewBox(cfg.MasterKey)
	if err != nil {
		log.Fatal("Failed to init credential encryption:", err)
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

	creds := ai.NewMongoCredentialStore(db, box)
	resolver := ai.NewResolver(creds, ai.Defaults{
		Provider: ai.Provider(cfg.DefaultProvider),
		APIKeys: map[ai.Provider]string{
			ai.ProviderOpenRouter: cfg.OpenRouterAPIKey,
			ai.ProviderOpenAI:     cfg.OpenAIAPIKey,
			ai.ProviderFynorra:    cfg.FynorraAPIKey,
			ai.ProviderGemini:     cfg.GeminiAPIKey,
		},
	}, cfg.CompletionRPS, appLog)

	engine := retrieval.NewEngine(index, resolver, retrieval.Config{
		TopK:            cfg.TopK,
		MaxTokens:       cfg.MaxTokens,
		MaxContextChars: cfg.MaxContextChars,
	}, appLog)

	addr, password, redisDB := cfg.AsynqRedisOpt()
	queueClient := asynq.NewClient(asynq.RedisClientOpt{Addr: addr, Password: password, DB: redisDB})
	defer queueClient.Close()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	routes.SetupIngestRoutes(router, cfg, docs, jobs, objects, queueClient, cancels, authMiddleware)
	routes.SetupDocumentRoutes(router, docs, objects, index, authMiddleware)
	routes.SetupQueryRoutes(router, engine, metrics, authMiddleware)
	routes.SetupSettingsRoutes(router, creds, authMiddleware)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		appLog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	appLog.Info("server exited")
}
