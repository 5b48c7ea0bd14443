package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// GCP / object store
	ProjectID       string
	Region          string
	RawBucket       string
	ProcessedBucket string

	// Database
	DBInstance string // host:port of the Postgres instance
	DBUser     string
	DBPassword string
	DBName     string
	DBPoolMin  int
	DBPoolMax  int

	// Models
	EmbeddingModel  string
	GenerativeModel string
	GeminiAPIKey    string
	VectorDim       int

	// Worker
	WorkerConcurrency int

	// Redis (asynq broker + rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// HTTP surface
	Port            string
	GinMode         string
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow int

	// Retrieval
	MaxContextChunks   int
	MaxChunkTitleLen   int
	RefinementMaxIters int
	RRFK               int

	// Chunking
	ChunkMaxTokens         int
	ChunkOverlap           int
	WhitespaceChunkSize    int
	WhitespaceChunkOverlap int

	// URL fetching
	URLFetchRetries     int
	URLFetchBackoffBase int // seconds
	PoliteDelaySeconds  int

	// Working area for downloaded blobs
	FileStorageDir string

	// Reducer refresh interval in minutes; 0 disables the scheduled run.
	ReducerIntervalMin int
	ReducerSeed        int64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		ProjectID:       getEnv("PROJECT_ID", ""),
		Region:          getEnv("REGION", "us-central1"),
		RawBucket:       getEnv("RAW_BUCKET", ""),
		ProcessedBucket: getEnv("PROCESSED_BUCKET", ""),

		DBInstance: getEnv("DB_INSTANCE", "localhost:5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "docatlas"),
		DBPoolMin:  getEnvInt("DB_POOL_MIN", 1),
		DBPoolMax:  getEnvInt("DB_POOL_MAX", 5),

		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		GenerativeModel: getEnv("GENERATIVE_MODEL", "gemini-2.0-flash"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		VectorDim:       getEnvInt("VECTOR_DIM", 768),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		CORSOrigins:     strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxContextChunks:   getEnvInt("MAX_CONTEXT_CHUNKS", 5),
		MaxChunkTitleLen:   getEnvInt("MAX_CHUNK_TITLE_LENGTH", 80),
		RefinementMaxIters: getEnvInt("REFINEMENT_MAX_ITERATIONS", 3),
		RRFK:               getEnvInt("RRF_K", 60),

		ChunkMaxTokens:         getEnvInt("CHUNK_MAX_TOKENS", 800),
		ChunkOverlap:           getEnvInt("CHUNK_OVERLAP", 200),
		WhitespaceChunkSize:    getEnvInt("WHITESPACE_CHUNK_SIZE", 10000),
		WhitespaceChunkOverlap: getEnvInt("WHITESPACE_CHUNK_OVERLAP", 500),

		URLFetchRetries:     getEnvInt("URL_FETCH_RETRIES", 5),
		URLFetchBackoffBase: getEnvInt("URL_FETCH_BACKOFF_BASE_SECONDS", 2),
		PoliteDelaySeconds:  getEnvInt("POLITE_DELAY_SECONDS", 2),

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		ReducerIntervalMin: getEnvInt("REDUCER_INTERVAL_MINUTES", 0),
		ReducerSeed:        getEnvInt64("REDUCER_SEED", 42),
	}

	// Validate required fields
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID is required - set it in .env file")
	}

	if cfg.RawBucket == "" || cfg.ProcessedBucket == "" {
		return nil, fmt.Errorf("RAW_BUCKET and PROCESSED_BUCKET are required - set them in .env file")
	}

	if cfg.DBPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkMaxTokens <= cfg.ChunkOverlap {
		return nil, fmt.Errorf("CHUNK_MAX_TOKENS (%d) must exceed CHUNK_OVERLAP (%d)", cfg.ChunkMaxTokens, cfg.ChunkOverlap)
	}

	return cfg, nil
}

// DatabaseURL builds the pgx connection string from the config parts.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.DBUser, c.DBPassword, c.DBInstance, c.DBName)
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
