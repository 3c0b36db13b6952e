// Package config loads service configuration from an optional YAML file
// overlaid with environment variables. Environment variables win.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// StoreBackend identifies the job store implementation.
type StoreBackend string

const (
	StoreMemory  StoreBackend = "memory"
	StoreSurreal StoreBackend = "surrealdb"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ListenAddr string `yaml:"listen_addr"`

	// Job store
	StoreBackend StoreBackend `yaml:"store_backend"`

	// SurrealDB connection (used when StoreBackend is surrealdb)
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`

	// LLM
	LLMProvider     Provider `yaml:"llm_provider"`
	LLMModel        string   `yaml:"llm_model"`
	OllamaHost      string   `yaml:"ollama_host"`
	OpenAIAPIKey    string   `yaml:"openai_api_key"`
	AnthropicAPIKey string   `yaml:"anthropic_api_key"`

	// Search
	SearchBaseURL string `yaml:"search_base_url"`
	SearchLimit   int    `yaml:"search_limit"`

	// Scheduler
	Workers           int      `yaml:"workers"`
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialBackoff    Duration `yaml:"initial_backoff"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	JobBudget         Duration `yaml:"job_budget"`

	// Logging
	LogFile      string     `yaml:"log_file"`
	LogLevelName string     `yaml:"log_level"`
	LogLevel     slog.Level `yaml:"-"`
}

// Load reads the optional config file named by DEEPRESEARCH_CONFIG, then
// overlays environment variables on top.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("DEEPRESEARCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	overlayEnv(&cfg)
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddr:   ":8080",
		StoreBackend: StoreMemory,

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "deepresearch",
		SurrealDBDatabase:  "jobs",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",

		LLMProvider: ProviderOllama,
		LLMModel:    "llama3.2",
		OllamaHost:  "http://localhost:11434",

		SearchBaseURL: "https://api.semanticscholar.org/graph/v1",
		SearchLimit:   5,

		Workers:           4,
		MaxAttempts:       3,
		InitialBackoff:    Duration(2 * time.Second),
		BackoffMultiplier: 2.0,
		JobBudget:         Duration(10 * time.Minute),

		LogFile:      "/tmp/deepresearch.log",
		LogLevelName: "INFO",
	}
}

func overlayEnv(cfg *Config) {
	cfg.ListenAddr = getEnv("DEEPRESEARCH_LISTEN_ADDR", cfg.ListenAddr)
	cfg.StoreBackend = StoreBackend(getEnv("DEEPRESEARCH_STORE", string(cfg.StoreBackend)))

	cfg.SurrealDBURL = getEnv("SURREALDB_URL", cfg.SurrealDBURL)
	cfg.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", cfg.SurrealDBNamespace)
	cfg.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", cfg.SurrealDBDatabase)
	cfg.SurrealDBUser = getEnv("SURREALDB_USER", cfg.SurrealDBUser)
	cfg.SurrealDBPass = getEnv("SURREALDB_PASS", cfg.SurrealDBPass)

	cfg.LLMProvider = Provider(getEnv("DEEPRESEARCH_LLM_PROVIDER", string(cfg.LLMProvider)))
	cfg.LLMModel = getEnv("DEEPRESEARCH_LLM_MODEL", cfg.LLMModel)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)

	cfg.SearchBaseURL = getEnv("DEEPRESEARCH_SEARCH_URL", cfg.SearchBaseURL)
	cfg.SearchLimit = getEnvInt("DEEPRESEARCH_SEARCH_LIMIT", cfg.SearchLimit)

	cfg.Workers = getEnvInt("DEEPRESEARCH_WORKERS", cfg.Workers)
	cfg.MaxAttempts = getEnvInt("DEEPRESEARCH_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.InitialBackoff = Duration(getEnvDuration("DEEPRESEARCH_INITIAL_BACKOFF", cfg.InitialBackoff.Std()))
	cfg.BackoffMultiplier = getEnvFloat("DEEPRESEARCH_BACKOFF_MULTIPLIER", cfg.BackoffMultiplier)
	cfg.JobBudget = Duration(getEnvDuration("DEEPRESEARCH_JOB_BUDGET", cfg.JobBudget.Std()))

	cfg.LogFile = getEnv("DEEPRESEARCH_LOG_FILE", cfg.LogFile)
	cfg.LogLevelName = getEnv("DEEPRESEARCH_LOG_LEVEL", cfg.LogLevelName)
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreSurreal:
	default:
		return fmt.Errorf("unsupported store backend: %s", c.StoreBackend)
	}
	switch c.LLMProvider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
