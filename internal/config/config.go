package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI       string
	DBName         string
	JWTSecret      string
	Port           string
	GinMode        string
	CORSOrigins    []string
	MaxFileSize    int64
	FileStorageDir string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Chunking
	MaxChunkSize int
	MinChunkSize int

	// Retrieval
	TopK               int
	RelevanceThreshold float64
	MaxContextChars    int

	// Vector index
	VectorDim int
	IndexDir  string

	// Hugging Face providers. A missing token downgrades capability
	// instead of failing startup.
	HFToken          string
	HFEmbeddingsURL  string
	HFSimilarityURL  string
	HFChatURL        string
	HFChatModel      string
	HFTimeoutSeconds int
	MaxEmbedChars    int

	// Embeddings provider: "auto" (default), "local", "api", "fake"
	EmbeddingsProvider string

	// Answer generator: "auto" (default), "remote", "extractive"
	AnswerProvider string

	// Gemini summarization (optional)
	GeminiAPIKey string
	GeminiModel  string

	// Answer cache TTL in seconds, 0 disables caching
	AnswerCacheTTL int

	// Worker
	WorkerConcurrency int
	StuckSweepMinutes int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017/document_qa"),
		DBName:         getEnv("DB_NAME", "document_qa"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		CORSOrigins:    strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 800),
		MinChunkSize: getEnvInt("MIN_CHUNK_SIZE", 50),

		TopK:               getEnvInt("TOP_K", 3),
		RelevanceThreshold: getEnvFloat64("RELEVANCE_THRESHOLD", 0.3),
		MaxContextChars:    getEnvInt("MAX_CONTEXT_CHARS", 2000),

		VectorDim: getEnvInt("VECTOR_DIM", 384),
		IndexDir:  getEnv("INDEX_DIR", "./storage/index"),

		HFToken:          getEnv("HF_TOKEN", ""),
		HFEmbeddingsURL:  getEnv("HF_EMBEDDINGS_URL", "https://api-inference.huggingface.co/models/sentence-transformers/all-MiniLM-L6-v2/pipeline/feature-extraction"),
		HFSimilarityURL:  getEnv("HF_SIMILARITY_URL", "https://router.huggingface.co/hf-inference/models/sentence-transformers/all-MiniLM-L6-v2/pipeline/sentence-similarity"),
		HFChatURL:        getEnv("HF_CHAT_URL", "https://router.huggingface.co/v1/chat/completions"),
		HFChatModel:      getEnv("HF_CHAT_MODEL", "meta-llama/Llama-4-Scout-17B-16E-Instruct:fireworks-ai"),
		HFTimeoutSeconds: getEnvInt("HF_TIMEOUT", 30),
		MaxEmbedChars:    getEnvInt("MAX_EMBED_CHARS", 5000),

		EmbeddingsProvider: getEnv("EMBEDDINGS_PROVIDER", "auto"),
		AnswerProvider:     getEnv("ANSWER_PROVIDER", "auto"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		AnswerCacheTTL: getEnvInt("ANSWER_CACHE_TTL", 3600),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		StuckSweepMinutes: getEnvInt("STUCK_SWEEP_MINUTES", 15),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.MaxChunkSize <= 0 {
		return nil, fmt.Errorf("MAX_CHUNK_SIZE must be positive")
	}

	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("VECTOR_DIM must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
