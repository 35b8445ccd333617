// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Catalogue, Matcher, Detection,
// etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Catalogue CatalogueConfig `yaml:"catalogue"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Detection DetectionConfig `yaml:"detection"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Access    AccessConfig    `yaml:"access"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CacheInvalidate string `yaml:"cacheInvalidate"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// Namespace prefixes every key, so deployments can share a database.
	Namespace string `yaml:"namespace"`
}

// CatalogueConfig selects where disease records come from. Driver is one of
// "postgres", "sqlite" or "memory"; SeedPath optionally points at a YAML
// catalogue loaded at start-up.
type CatalogueConfig struct {
	Driver       string        `yaml:"driver"`
	SQLitePath   string        `yaml:"sqlitePath"`
	SeedPath     string        `yaml:"seedPath"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
}

// MatcherConfig tunes the symptom matching engine.
type MatcherConfig struct {
	EnableSeverityWeighting bool    `yaml:"enableSeverityWeighting"`
	ConfidenceThreshold     float64 `yaml:"confidenceThreshold"`
	MinKeywordLength        int     `yaml:"minKeywordLength"`
	AlternativeScoreFloor   float64 `yaml:"alternativeScoreFloor"`
	MaxAlternatives         int     `yaml:"maxAlternatives"`
	VocabularyPath          string  `yaml:"vocabularyPath"`
}

// DetectionConfig controls the detection workflow around the matcher.
type DetectionConfig struct {
	MaxDescriptionLength int `yaml:"maxDescriptionLength"`
	MaxBatchSize         int `yaml:"maxBatchSize"`
	MaxConcurrent        int `yaml:"maxConcurrent"`
	HistoryLimit         int `yaml:"historyLimit"`
}

// AnalyticsConfig controls the event collector in the detector and the
// aggregating analytics service.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	Port             int           `yaml:"port"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// AccessConfig controls per-client rate limiting and CORS on the detector.
// A RateLimit of zero disables limiting; no CORSOrigins disables CORS.
type AccessConfig struct {
	RateLimit   int           `yaml:"rateLimit"`
	RateWindow  time.Duration `yaml:"rateWindow"`
	CORSOrigins []string      `yaml:"corsOrigins"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the matcher or service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	m := c.Matcher
	if m.ConfidenceThreshold < 0 || m.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("matcher.confidenceThreshold must be within [0,1], got %v", m.ConfidenceThreshold))
	}
	if m.AlternativeScoreFloor < 0 || m.AlternativeScoreFloor > 1 {
		errs = append(errs, fmt.Errorf("matcher.alternativeScoreFloor must be within [0,1], got %v", m.AlternativeScoreFloor))
	}
	if m.MinKeywordLength <= 0 {
		errs = append(errs, fmt.Errorf("matcher.minKeywordLength must be positive, got %d", m.MinKeywordLength))
	}
	if m.MaxAlternatives <= 0 {
		errs = append(errs, fmt.Errorf("matcher.maxAlternatives must be positive, got %d", m.MaxAlternatives))
	}
	if c.Detection.MaxDescriptionLength <= 0 {
		errs = append(errs, fmt.Errorf("detection.maxDescriptionLength must be positive, got %d", c.Detection.MaxDescriptionLength))
	}
	if c.Detection.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("detection.maxConcurrent must be positive, got %d", c.Detection.MaxConcurrent))
	}
	if c.Access.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("access.rateLimit must not be negative, got %d", c.Access.RateLimit))
	}
	switch c.Catalogue.Driver {
	case "postgres", "memory":
	case "sqlite":
		if c.Catalogue.SQLitePath == "" {
			errs = append(errs, errors.New("catalogue.sqlitePath is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalogue.driver %q is not one of postgres, sqlite, memory", c.Catalogue.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "plantdisease",
			User:            "plantdisease",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "plantdisease-group",
			Topics: KafkaTopics{
				CacheInvalidate: "catalogue-updates",
				AnalyticsEvents: "detection-events",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			PoolSize:  10,
			CacheTTL:  10 * time.Minute,
			Namespace: "plantdisease",
		},
		Catalogue: CatalogueConfig{
			Driver:       "postgres",
			FetchTimeout: 3 * time.Second,
		},
		Matcher: MatcherConfig{
			EnableSeverityWeighting: true,
			ConfidenceThreshold:     0.4,
			MinKeywordLength:        3,
			AlternativeScoreFloor:   0.4,
			MaxAlternatives:         3,
		},
		Detection: DetectionConfig{
			MaxDescriptionLength: 4096,
			MaxBatchSize:         50,
			MaxConcurrent:        8,
			HistoryLimit:         100,
		},
		Analytics: AnalyticsConfig{
			Enabled:          true,
			BufferSize:       10000,
			Port:             8090,
			SnapshotInterval: time.Minute,
		},
		Access: AccessConfig{
			RateLimit:   60,
			RateWindow:  time.Minute,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    true,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PD_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("PD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PD_CATALOGUE_DRIVER"); v != "" {
		cfg.Catalogue.Driver = v
	}
	if v := os.Getenv("PD_CATALOGUE_SQLITE_PATH"); v != "" {
		cfg.Catalogue.SQLitePath = v
	}
	if v := os.Getenv("PD_CATALOGUE_SEED_PATH"); v != "" {
		cfg.Catalogue.SeedPath = v
	}
	if v := os.Getenv("PD_MATCHER_SEVERITY_WEIGHTING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Matcher.EnableSeverityWeighting = b
		}
	}
	if v := os.Getenv("PD_MATCHER_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("PD_MATCHER_VOCABULARY_PATH"); v != "" {
		cfg.Matcher.VocabularyPath = v
	}
	if v := os.Getenv("PD_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("PD_ACCESS_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Access.RateLimit = n
		}
	}
	if v := os.Getenv("PD_ACCESS_CORS_ORIGINS"); v != "" {
		cfg.Access.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
