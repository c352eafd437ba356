package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Queue    QueueConfig
	Vision   VisionConfig
	Embed    EmbeddingConfig
	Search   SearchConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

// QueueConfig holds processing-queue and worker-pool configuration.
type QueueConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

// VisionConfig holds vision-model configuration.
type VisionConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// EmbeddingConfig holds embedding-model configuration.
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// SearchConfig holds hybrid-search ranking configuration. Weights and
// cutoffs are configuration, not inline literals, so ranking behavior
// stays tunable and testable.
type SearchConfig struct {
	LexicalWeight  float64
	VectorWeight   float64
	MinLexicalRank float64
	MinCosine      float64
	MaxLimit       int
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Queue: QueueConfig{
			Workers:      getEnvAsInt("QUEUE_WORKERS", 4),
			BatchSize:    getEnvAsInt("QUEUE_BATCH_SIZE", 8),
			PollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", 5*time.Second),
			Lease:        getEnvAsDuration("QUEUE_LEASE", 5*time.Minute),
			MaxAttempts:  getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBase:  getEnvAsDuration("QUEUE_BACKOFF_BASE", 30*time.Second),
			BackoffMax:   getEnvAsDuration("QUEUE_BACKOFF_MAX", 15*time.Minute),
		},
		Vision: VisionConfig{
			BaseURL:     getEnv("VISION_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("VISION_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("VISION_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("VISION_TIMEOUT", 45*time.Second),
		},
		Embed: EmbeddingConfig{
			BaseURL:   getEnv("EMBED_BASE_URL", "https://api.openai.com/v1"),
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			Model:     getEnv("EMBED_MODEL", "text-embedding-3-small"),
			Dimension: getEnvAsInt("EMBED_DIMENSION", 512),
			Timeout:   getEnvAsDuration("EMBED_TIMEOUT", 20*time.Second),
		},
		Search: SearchConfig{
			LexicalWeight:  getEnvAsFloat64("SEARCH_LEXICAL_WEIGHT", 0.5),
			VectorWeight:   getEnvAsFloat64("SEARCH_VECTOR_WEIGHT", 0.5),
			MinLexicalRank: getEnvAsFloat64("SEARCH_MIN_LEXICAL_RANK", 0.01),
			MinCosine:      getEnvAsFloat64("SEARCH_MIN_COSINE", 0.15),
			MaxLimit:       getEnvAsInt("SEARCH_MAX_LIMIT", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewProcessingError(KindPermanent, "DB_URL is required", ErrInvalidInput)
	}
	if c.Vision.APIKey == "" {
		return NewProcessingError(KindPermanent, "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Queue.Workers <= 0 {
		return NewProcessingError(KindPermanent, "QUEUE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Embed.Dimension <= 0 {
		return NewProcessingError(KindPermanent, "EMBED_DIMENSION must be positive", ErrInvalidInput)
	}
	if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 {
		return NewProcessingError(KindPermanent, "search weights must be non-negative", ErrInvalidInput)
	}
	return nil
}
