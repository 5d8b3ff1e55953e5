// Package config loads and validates application configuration from a YAML
// file with environment-variable overrides. It provides typed structs for
// every subsystem (LLM, Embedding, Qdrant, Postgres, Redis, Kafka, Pipeline).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/kazankay/eventpipe/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LLMConfig holds the model-gateway endpoint, credentials, and retry shape.
type LLMConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	APIKeys        []string      `yaml:"apiKeys"`
	Model          string        `yaml:"model"`
	VisionModel    string        `yaml:"visionModel"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"maxTokens"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	BackoffMin     time.Duration `yaml:"backoffMin"`
	BackoffMax     time.Duration `yaml:"backoffMax"`
}

// EmbeddingConfig controls the embedding endpoint and the Redis-backed
// embedding cache.
type EmbeddingConfig struct {
	Model         string        `yaml:"model"`
	MaxInputChars int           `yaml:"maxInputChars"`
	CacheTTL      time.Duration `yaml:"cacheTtl"`
}

// QdrantConfig holds the similarity-index connection and dedup parameters.
type QdrantConfig struct {
	URL                 string        `yaml:"url"`
	APIKey              string        `yaml:"apiKey"`
	Collection          string        `yaml:"collection"`
	VectorSize          int           `yaml:"vectorSize"`
	SimilarityThreshold float32       `yaml:"similarityThreshold"`
	RequestTimeout      time.Duration `yaml:"requestTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters for the embedding cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds the raw-post intake broker and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	RawPostsTopic string   `yaml:"rawPostsTopic"`
}

// PipelineConfig controls batch processing behaviour.
type PipelineConfig struct {
	BatchLimit      int  `yaml:"batchLimit"`
	GeneratePosters bool `yaml:"generatePosters"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o",
			Temperature:    0.7,
			MaxTokens:      2000,
			RequestTimeout: 60 * time.Second,
			MaxAttempts:    3,
			BackoffMin:     10 * time.Second,
			BackoffMax:     60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:         "text-embedding-ada-002",
			MaxInputChars: 8000,
			CacheTTL:      24 * time.Hour,
		},
		Qdrant: QdrantConfig{
			URL:                 "http://localhost:6333",
			Collection:          "events",
			VectorSize:          1536,
			SimilarityThreshold: 0.92,
			RequestTimeout:      30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "eventpipe",
			User:            "eventpipe",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "eventpipe-intake",
			RawPostsTopic: "raw-posts",
		},
		Pipeline: PipelineConfig{
			BatchLimit:      10,
			GeneratePosters: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads EP_* environment variables and overrides the
// corresponding config fields. API keys accept comma-, semicolon-, or
// newline-separated lists.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EP_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("EP_LLM_API_KEYS"); v != "" {
		cfg.LLM.APIKeys = SplitKeys(v)
	}
	if v := os.Getenv("EP_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("EP_LLM_VISION_MODEL"); v != "" {
		cfg.LLM.VisionModel = v
	}
	if v := os.Getenv("EP_QDRANT_URL"); v != "" {
		cfg.Qdrant.URL = v
	}
	if v := os.Getenv("EP_QDRANT_API_KEY"); v != "" {
		cfg.Qdrant.APIKey = v
	}
	if v := os.Getenv("EP_QDRANT_COLLECTION"); v != "" {
		cfg.Qdrant.Collection = v
	}
	if v := os.Getenv("EP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("EP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("EP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("EP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("EP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("EP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("EP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("EP_KAFKA_RAW_POSTS_TOPIC"); v != "" {
		cfg.Kafka.RawPostsTopic = v
	}
	if v := os.Getenv("EP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// SplitKeys parses a delimiter-separated credential list, dropping blanks
// and duplicates while preserving order.
func SplitKeys(raw string) []string {
	var keys []string
	seen := make(map[string]struct{})
	for _, chunk := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	}) {
		trimmed := strings.TrimSpace(chunk)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		keys = append(keys, trimmed)
	}
	return keys
}

// Validate checks the conditions that must hold before any processing
// starts. A failure here is fatal for the run.
func (c *Config) Validate() error {
	if len(c.LLM.APIKeys) == 0 {
		return fmt.Errorf("%w: at least one LLM API key is required (EP_LLM_API_KEYS)", apperrors.ErrConfig)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("%w: llm.baseUrl is required", apperrors.ErrConfig)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm.model is required", apperrors.ErrConfig)
	}
	if c.Qdrant.URL == "" {
		return fmt.Errorf("%w: qdrant.url is required", apperrors.ErrConfig)
	}
	if c.Qdrant.VectorSize <= 0 {
		return fmt.Errorf("%w: qdrant.vectorSize must be positive", apperrors.ErrConfig)
	}
	if c.Qdrant.SimilarityThreshold <= 0 || c.Qdrant.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: qdrant.similarityThreshold must be in (0, 1]", apperrors.ErrConfig)
	}
	return nil
}
