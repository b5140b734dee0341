package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Routing       RoutingConfig
	Embeddings    EmbeddingsConfig
	Providers     ProvidersConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RoutingConfig holds routing strategy configuration
type RoutingConfig struct {
	// Strategy selects the routing strategy: "keyword" or "embedding"
	Strategy string

	// ClassifierProvider names the chat client used for keyword
	// classification ("openai", "ollama")
	ClassifierProvider string

	// ClassifierModel is the model the classifier runs on
	ClassifierModel string

	// BackendsFile is the path to the JSON backend definitions
	BackendsFile string
}

// EmbeddingsConfig holds embedding collaborator configuration
type EmbeddingsConfig struct {
	// Provider selects the embedding client: "tei", "openai" or "ollama"
	Provider string

	// TEIBaseURL is the Text Embeddings Inference server address
	TEIBaseURL string

	// Model overrides the provider's default embedding model
	Model string

	// CacheTTL bounds how long embeddings stay in Redis
	CacheTTL time.Duration
}

// ProvidersConfig holds model provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
	Ollama OllamaConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// OllamaConfig holds Ollama provider configuration
type OllamaConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// DatabaseConfig holds the optional decision log database. When URL is
// empty, decisions are not persisted.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds the optional embedding cache. When Addr is empty,
// embeddings are computed on every request.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// BackendSpec is one entry in the backends definition file
type BackendSpec struct {
	ID         string `json:"id"`
	Capability string `json:"capability"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Routing: RoutingConfig{
			Strategy:           getEnv("ROUTING_STRATEGY", "keyword"),
			ClassifierProvider: getEnv("ROUTING_CLASSIFIER_PROVIDER", "ollama"),
			ClassifierModel:    getEnv("ROUTING_CLASSIFIER_MODEL", "phi3"),
			BackendsFile:       getEnv("BACKENDS_FILE", "backends.json"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   getEnv("EMBEDDINGS_PROVIDER", "tei"),
			TEIBaseURL: getEnv("TEI_BASE_URL", "http://localhost:8080"),
			Model:      getEnv("EMBEDDINGS_MODEL", ""),
			CacheTTL:   getEnvAsDuration("EMBEDDINGS_CACHE_TTL", 24*time.Hour),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:     getEnv("OPENAI_API_KEY", ""),
				BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout:    getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxRetries: getEnvAsInt("OPENAI_MAX_RETRIES", 3),
			},
			Ollama: OllamaConfig{
				BaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				Timeout:    getEnvAsDuration("OLLAMA_TIMEOUT", 120*time.Second),
				MaxRetries: getEnvAsInt("OLLAMA_MAX_RETRIES", 3),
			},
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Routing.Strategy {
	case "keyword", "embedding":
	default:
		return fmt.Errorf("unknown routing strategy %q: must be keyword or embedding", c.Routing.Strategy)
	}

	switch c.Routing.ClassifierProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown classifier provider %q: must be openai or ollama", c.Routing.ClassifierProvider)
	}

	if c.Routing.Strategy == "keyword" && c.Routing.ClassifierModel == "" {
		return fmt.Errorf("classifier model is required for the keyword strategy")
	}

	switch c.Embeddings.Provider {
	case "tei", "openai", "ollama":
	default:
		return fmt.Errorf("unknown embeddings provider %q: must be tei, openai or ollama", c.Embeddings.Provider)
	}

	if c.Routing.BackendsFile == "" {
		return fmt.Errorf("backends file is required")
	}

	if c.IsProduction() && c.Providers.OpenAI.APIKey == "" && c.Providers.Ollama.BaseURL == "" {
		return fmt.Errorf("at least one model provider must be configured in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadBackends reads the backend definitions file. Order matters: the last
// entry becomes the default backend.
func LoadBackends(path string) ([]BackendSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backends file %q: %w", path, err)
	}

	var specs []BackendSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse backends file %q: %w", path, err)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("backends file %q defines no backends", path)
	}

	for i, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("backends file %q: entry %d has no id", path, i)
		}
		if spec.Capability == "" {
			return nil, fmt.Errorf("backends file %q: backend %q has no capability", path, spec.ID)
		}
	}

	return specs, nil
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8090)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8090
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
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
