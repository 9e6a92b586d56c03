// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Classifier, Corpus, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables the run registry.
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

// KafkaConfig holds Kafka broker and topic settings. No brokers disables
// the structuring worker.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentTokens  string `yaml:"documentTokens"`
	StructuredEntry string `yaml:"structuredEntry"`
}

// RedisConfig holds Redis connection and label-cache parameters. An empty
// Addr disables the classifier cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ClassifierConfig holds the RPC address of each stage model and the
// failure policy applied around every call.
type ClassifierConfig struct {
	BodySegmentationAddr string        `yaml:"bodySegmentationAddr"`
	LexicalEntryAddr     string        `yaml:"lexicalEntryAddr"`
	FormAddr             string        `yaml:"formAddr"`
	SenseAddr            string        `yaml:"senseAddr"`
	Timeout              time.Duration `yaml:"timeout"`
	FailureThreshold     int           `yaml:"failureThreshold"`
	ResetTimeout         time.Duration `yaml:"resetTimeout"`
}

// PipelineConfig selects how deep the structuring cascade goes: "segment"
// stops at lexical entry components, "full" also structures forms and
// senses.
type PipelineConfig struct {
	Mode string `yaml:"mode"`
}

// CorpusConfig controls training-corpus generation.
type CorpusConfig struct {
	TemplateDir     string `yaml:"templateDir"`
	Workers         int    `yaml:"workers"`
	ContinueOnError bool   `yaml:"continueOnError"`
	Compress        bool   `yaml:"compress"`
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
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Corpus.Workers < 1 {
		return fmt.Errorf("corpus.workers must be at least 1, got %d", c.Corpus.Workers)
	}
	if c.Pipeline.Mode != "segment" && c.Pipeline.Mode != "full" {
		return fmt.Errorf("pipeline.mode must be segment or full, got %q", c.Pipeline.Mode)
	}
	if c.Classifier.Timeout < 0 {
		return fmt.Errorf("classifier.timeout must not be negative")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "dictionaries",
			User:            "dictionaries",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "dictionaries-structurer",
			Topics: KafkaTopics{
				DocumentTokens:  "dictionary-tokens",
				StructuredEntry: "dictionary-structured",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Classifier: ClassifierConfig{
			BodySegmentationAddr: "localhost:9101",
			LexicalEntryAddr:     "localhost:9102",
			FormAddr:             "localhost:9103",
			SenseAddr:            "localhost:9104",
			Timeout:              30 * time.Second,
			FailureThreshold:     5,
			ResetTimeout:         30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Mode: "segment",
		},
		Corpus: CorpusConfig{
			Workers: 1,
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

// applyEnvOverrides reads GD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("GD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("GD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("GD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("GD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("GD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("GD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GD_CLASSIFIER_BODY_SEGMENTATION_ADDR"); v != "" {
		cfg.Classifier.BodySegmentationAddr = v
	}
	if v := os.Getenv("GD_CLASSIFIER_LEXICAL_ENTRY_ADDR"); v != "" {
		cfg.Classifier.LexicalEntryAddr = v
	}
	if v := os.Getenv("GD_CLASSIFIER_FORM_ADDR"); v != "" {
		cfg.Classifier.FormAddr = v
	}
	if v := os.Getenv("GD_CLASSIFIER_SENSE_ADDR"); v != "" {
		cfg.Classifier.SenseAddr = v
	}
	if v := os.Getenv("GD_PIPELINE_MODE"); v != "" {
		cfg.Pipeline.Mode = v
	}
	if v := os.Getenv("GD_CORPUS_TEMPLATE_DIR"); v != "" {
		cfg.Corpus.TemplateDir = v
	}
	if v := os.Getenv("GD_CORPUS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Corpus.Workers = n
		}
	}
	if v := os.Getenv("GD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
