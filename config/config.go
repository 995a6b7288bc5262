package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment at startup.
type Config struct {
	ServerAddr string

	// Vector index backend: "chroma" (default) or "memory".
	VectorBackend  string
	ChromaURL      string
	CollectionName string

	// Chunking policy. The strategy and granularity are recorded in the
	// index metadata; changing them against an existing index is rejected.
	ChunkSize        int
	ChunkOverlap     int
	ChunkStrategy    string // "window" or "recursive"
	ChunkGranularity string // "runes" or "tokens"

	// Similarity metric the index ranks by; must match the geometry the
	// embedding model was trained for.
	SimilarityMetric string

	// Embedding provider: "ollama" (default) or "openai".
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
	EmbeddingBatch    int
	OllamaURL         string
	OpenAIAPIKey      string
	OpenAIBaseURL     string

	GeminiAPIKey    string
	GenerationModel string

	// WatchDir, when set, is scanned and watched for documents to
	// auto-ingest.
	WatchDir string
}

// Load reads the .env file when present, then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	return &Config{
		ServerAddr:        getEnv("SERVER_ADDR", ":8080"),
		VectorBackend:     getEnv("VECTOR_BACKEND", "chroma"),
		ChromaURL:         getEnv("CHROMA_URL", "http://localhost:8000"),
		CollectionName:    getEnv("CHROMA_COLLECTION", "documents"),
		ChunkSize:         getEnvAsInt("CHUNK_SIZE", 500),
		ChunkOverlap:      getEnvAsInt("CHUNK_OVERLAP", 125),
		ChunkStrategy:     getEnv("CHUNK_STRATEGY", "window"),
		ChunkGranularity:  getEnv("CHUNK_GRANULARITY", "runes"),
		SimilarityMetric:  getEnv("SIMILARITY_METRIC", "cosine"),
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text:v1.5"),
		EmbeddingDim:      getEnvAsInt("EMBEDDING_DIMENSION", 768),
		EmbeddingBatch:    getEnvAsInt("EMBEDDING_BATCH_SIZE", 20),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GenerationModel:   getEnv("GENERATION_MODEL", "gemini-2.5-flash"),
		WatchDir:          getEnv("WATCH_DIR", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("WARN: %s=%q is not an integer, using default %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
