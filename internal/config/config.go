// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"KGE_HOST" yaml:"host"`
	Port int    `envconfig:"KGE_PORT" yaml:"port"`

	// Evaluation configuration
	Eval EvalConfig `yaml:"eval"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Redis configuration (run report storage)
	Redis RedisConfig `yaml:"redis"`

	// Qdrant configuration (entity embedding storage)
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// EvalConfig holds evaluation defaults.
type EvalConfig struct {
	BatchSize    int       `envconfig:"KGE_EVAL_BATCH_SIZE" yaml:"batch_size"`
	Ks           []float64 `envconfig:"KGE_EVAL_KS" yaml:"ks"`
	Filtered     bool      `envconfig:"KGE_EVAL_FILTERED" yaml:"filtered"`
	NumNegatives int       `envconfig:"KGE_EVAL_NUM_NEGATIVES" yaml:"num_negatives"`
	Seed         int64     `envconfig:"KGE_EVAL_SEED" yaml:"seed"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type            string `envconfig:"KGE_BUS_TYPE" yaml:"type"`
	KafkaBrokers    string `envconfig:"KGE_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup      string `envconfig:"KGE_KAFKA_GROUP" yaml:"kafka_group"`
	EventLogPath    string `envconfig:"KGE_EVENT_LOG_PATH" yaml:"event_log_path"`
	EventLogEnabled bool   `envconfig:"KGE_EVENT_LOG_ENABLED" yaml:"event_log_enabled"`
}

// RedisConfig holds Redis connection settings for run report storage.
type RedisConfig struct {
	URL       string `envconfig:"KGE_REDIS_URL" yaml:"url"`
	KeyPrefix string `envconfig:"KGE_REDIS_KEY_PREFIX" yaml:"key_prefix"`
	TTLHours  int    `envconfig:"KGE_REDIS_TTL_HOURS" yaml:"ttl_hours"` // 0 = no expiry
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey     string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	Collection string `envconfig:"KGE_QDRANT_COLLECTION" yaml:"collection"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"KGE_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"KGE_LOG_FORMAT" yaml:"format"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"KGE_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"KGE_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Eval = EvalConfig{
		BatchSize:    32,
		Ks:           []float64{1, 3, 5, 10},
		Filtered:     true,
		NumNegatives: 50,
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Redis = RedisConfig{
		URL:       "redis://localhost:6379",
		KeyPrefix: "kge:",
		TTLHours:  0,
	}

	cfg.Qdrant = QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "kge_entities",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Evaluation validation
	if c.Eval.BatchSize < 1 {
		errs = append(errs, "batch_size must be positive")
	}

	if c.Eval.NumNegatives < 1 {
		errs = append(errs, "num_negatives must be positive")
	}

	for _, k := range c.Eval.Ks {
		isInteger := k == float64(int(k))
		if isInteger && k < 1 {
			errs = append(errs, fmt.Sprintf("hits@k threshold %v must be a positive integer or a fraction in (0, 1)", k))
		}
		if !isInteger && (k <= 0 || k >= 1) {
			errs = append(errs, fmt.Sprintf("fractional hits@k threshold %v must be strictly between 0 and 1", k))
		}
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.EventLogEnabled && c.Bus.EventLogPath == "" {
		errs = append(errs, "event_log_path is required when event logging is enabled")
	}

	// Redis validation
	if c.Redis.TTLHours < 0 {
		errs = append(errs, "ttl_hours must not be negative")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
