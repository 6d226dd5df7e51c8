// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Analytics, Source, etc.).
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
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Source    SourceConfig    `yaml:"source"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxSnapshotSize int64         `yaml:"maxSnapshotSize"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
	UploadsPerMin   int           `yaml:"uploadsPerMinute"` // per client IP, 0 disables
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Snapshots  string `yaml:"snapshots"`
	Selections string `yaml:"selections"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalyticsConfig controls the cooperative scan sizes, the bucket walk cap
// and how logical fields map onto snapshot columns.
type AnalyticsConfig struct {
	IndexChunk         int           `yaml:"indexChunk"`
	ScanChunk          int           `yaml:"scanChunk"`
	MaxBuckets         int           `yaml:"maxBuckets"`
	DefaultGranularity string        `yaml:"defaultGranularity"`
	Locale             string        `yaml:"locale"`
	Columns            ColumnAliases `yaml:"columns"`
}

// ColumnAliases lists, per logical field, the column names tried in order.
type ColumnAliases struct {
	Category []string `yaml:"category"`
	Date     []string `yaml:"date"`
	RowID    []string `yaml:"rowId"`
	Archive  []string `yaml:"archive"`
}

// SourceConfig describes where snapshots come from besides HTTP uploads.
type SourceConfig struct {
	Table          string        `yaml:"table"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
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
// overrides. It returns a Config populated with defaults for any missing values.
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

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Analytics.IndexChunk <= 0 {
		return fmt.Errorf("analytics.indexChunk must be positive, got %d", c.Analytics.IndexChunk)
	}
	if c.Analytics.ScanChunk <= 0 {
		return fmt.Errorf("analytics.scanChunk must be positive, got %d", c.Analytics.ScanChunk)
	}
	if c.Analytics.MaxBuckets <= 0 {
		return fmt.Errorf("analytics.maxBuckets must be positive, got %d", c.Analytics.MaxBuckets)
	}
	cols := c.Analytics.Columns
	if len(cols.Category) == 0 || len(cols.Date) == 0 || len(cols.RowID) == 0 {
		return fmt.Errorf("analytics.columns: category, date and rowId need at least one alias")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxSnapshotSize: 256 << 20,
			AllowOrigins:    []string{"*"},
			UploadsPerMin:   30,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "receptions",
			User:            "receptions",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "timeline-analytics",
			Topics: KafkaTopics{
				Snapshots:  "dataset-snapshots",
				Selections: "row-selections",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			IndexChunk:         8000,
			ScanChunk:          12000,
			MaxBuckets:         2400,
			DefaultGranularity: "month",
			Locale:             "fr",
			Columns: ColumnAliases{
				Category: []string{"NomProjetString", "NomProjet"},
				Date:     []string{"Recu", "RecuString"},
				RowID:    []string{"id", "ID", "Id"},
				Archive:  []string{"Archive"},
			},
		},
		Source: SourceConfig{
			Table:          "receptions",
			ReloadInterval: 0,
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

// applyEnvOverrides reads RT_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RT_SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RT_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("RT_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RT_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RT_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RT_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RT_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RT_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("RT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RT_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("RT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RT_ANALYTICS_GRANULARITY"); v != "" {
		cfg.Analytics.DefaultGranularity = v
	}
	if v := os.Getenv("RT_ANALYTICS_LOCALE"); v != "" {
		cfg.Analytics.Locale = v
	}
	if v := os.Getenv("RT_SOURCE_TABLE"); v != "" {
		cfg.Source.Table = v
	}
	if v := os.Getenv("RT_SOURCE_RELOAD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.ReloadInterval = d
		}
	}
	if v := os.Getenv("RT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RT_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
