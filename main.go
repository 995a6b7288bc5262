package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/gin-gonic/gin"
	"google.golang.org/genai"

	"github.com/docqa/rag/config"
	"github.com/docqa/rag/controller"
	"github.com/docqa/rag/models"
	"github.com/docqa/rag/services"
)

func main() {
	cfg := config.Load()

	// Shared HTTP client; its timeout bounds each embedding attempt.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	chunker, err := buildChunker(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to configure chunker: %v", err)
	}

	embedder, err := buildEmbedder(cfg, httpClient)
	if err != nil {
		log.Fatalf("FATAL: Failed to configure embedder: %v", err)
	}

	meta := models.IndexMetadata{
		Granularity:    chunker.Granularity(),
		Strategy:       chunker.Strategy(),
		EmbeddingModel: embedder.Model(),
		Dimension:      embedder.Dimension(),
		Metric:         cfg.SimilarityMetric,
	}
	index, cleanup, err := buildIndex(cfg, meta)
	if err != nil {
		log.Fatalf("FATAL: Failed to set up vector index: %v", err)
	}
	defer cleanup()

	// Create Gemini client
	geminiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to create Gemini client: %v. Make sure GEMINI_API_KEY is set.", err)
	}
	log.Println("Successfully connected to Google Gemini.")

	generator := services.NewAnswerGenerator(services.NewGeminiGenerator(geminiClient, cfg.GenerationModel))

	ragService, err := services.NewRAGService(chunker, embedder, index, generator)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	ragController := controller.NewRAGController(ragService)

	// Optionally keep a local directory in sync with the index.
	if cfg.WatchDir != "" {
		watchCtx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()
		indexer := services.NewFileIndexingService(ragService, index)
		go func() {
			indexer.ScanAndIndexDirectory(watchCtx, cfg.WatchDir)
			indexer.WatchDirectory(watchCtx, cfg.WatchDir)
		}()
	}

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware for the local frontend
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Add health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "RAG API",
			"version": "1.0.0",
		})
	})

	// API routes
	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/documents", ragController.UploadDocument) // Upload and ingest a document
		apiV1.POST("/ask", ragController.AskQuestion)          // Ask a question
		apiV1.GET("/stats", ragController.GetStats)            // Index statistics
	}

	// Start the Server
	log.Printf("Go Gin backend server starting on %s", cfg.ServerAddr)
	log.Printf("Health check available at: GET /health")
	log.Printf("API endpoints:")
	log.Printf("  POST %s/api/v1/documents", cfg.ServerAddr)
	log.Printf("  POST %s/api/v1/ask", cfg.ServerAddr)

	if err := router.Run(cfg.ServerAddr); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}

func buildChunker(cfg *config.Config) (services.Chunker, error) {
	if cfg.ChunkStrategy == models.StrategyRecursive {
		return services.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return services.NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkGranularity)
}

func buildEmbedder(cfg *config.Config, httpClient *http.Client) (services.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for the openai embedding provider")
		}
		return services.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbeddingBatch), nil
	case "ollama":
		return services.NewOllamaEmbedder(httpClient, cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbeddingBatch), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// buildIndex returns the configured vector index plus a cleanup function to
// release backend resources.
func buildIndex(cfg *config.Config, meta models.IndexMetadata) (services.VectorIndex, func(), error) {
	if cfg.VectorBackend == "memory" {
		return services.NewMemoryIndex(meta), func() {}, nil
	}

	// Create Chroma client using v2 API
	chromaClient, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.ChromaURL))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	index, err := services.NewChromaIndex(context.Background(), chromaClient, cfg.CollectionName, meta)
	if err != nil {
		_ = chromaClient.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := chromaClient.Close(); err != nil {
			log.Printf("Warning: Failed to close chroma client: %v", err)
		}
	}
	return index, cleanup, nil
}
