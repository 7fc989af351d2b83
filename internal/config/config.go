// Package config provides configuration management for the grading
// orchestrator.
//
// Configuration is loaded from multiple sources in this order:
// 1. Configuration file (YAML)
// 2. Environment variables
// 3. Explicit overrides applied by the caller after Load
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"brokle/internal/core/domain/grading"
)

// Config is the complete application configuration.
type Config struct {
	Environment string               `mapstructure:"environment"`
	App         AppConfig            `mapstructure:"app"`
	Server      ServerConfig         `mapstructure:"server"`
	Logging     LoggingConfig        `mapstructure:"logging"`
	Database    DatabaseConfig       `mapstructure:"database"`
	Redis       RedisConfig          `mapstructure:"redis"`
	BlobStorage BlobStorageConfig    `mapstructure:"blob_storage"`
	Scoring     ScoringConfig        `mapstructure:"scoring"`
	Auth        AuthConfig           `mapstructure:"auth"`
	Grading     GradingRuntimeConfig `mapstructure:"grading"`
	ClassSystem ClassSystemConfig    `mapstructure:"class_system"`
	ClickHouse  ClickHouseConfig     `mapstructure:"clickhouse"`
	RuleUpgrade RuleUpgradeConfig    `mapstructure:"rule_upgrade"`
}

// ClassSystemConfig configures the optional best-effort push-to-class-system
// webhook (SPEC_FULL.md §C.4). Empty WebhookURL disables the notifier.
type ClassSystemConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AppConfig contains application identity.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig contains HTTP trigger-surface configuration.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig controls the slog handler construction.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" | "text"
}

// DatabaseConfig contains PostgreSQL/GORM configuration.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig contains the work-dispatch stream and lock-manager backend.
type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Password      string        `mapstructure:"password"`
	Database      int           `mapstructure:"database"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	StreamName    string        `mapstructure:"stream_name"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
}

// BlobStorageConfig contains the S3-compatible page-image/export store.
type BlobStorageConfig struct {
	Provider        string `mapstructure:"provider"`
	BucketName      string `mapstructure:"bucket_name"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// ScoringConfig contains the concrete ScoringService adapter's backend
// settings. The interface it satisfies treats the model as out of scope;
// this section only configures transport.
type ScoringConfig struct {
	Provider string        `mapstructure:"provider"` // "anthropic"
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig contains the JWT auth middleware settings for the HTTP trigger
// surface.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ClickHouseConfig contains the analytics-store connection the rule-upgrade
// pipeline's miner queries over (spec.md §4.8 "mine_rules"; the collaborator
// interface itself treats the backend as a client concern).
type ClickHouseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// RuleUpgradeConfig controls one mining run of the rule-upgrade pipeline.
type RuleUpgradeConfig struct {
	MiningWindow    time.Duration `mapstructure:"mining_window"`
	RequireApproval bool          `mapstructure:"require_approval"`
}

// GradingRuntimeConfig mirrors grading.GradingConfig for file/env loading;
// Resolve folds it onto the package defaults.
type GradingRuntimeConfig struct {
	BatchSize                      int           `mapstructure:"batch_size"`
	MaxConcurrentWorkers           int           `mapstructure:"max_concurrent_workers"`
	MaxRetries                     int           `mapstructure:"max_retries"`
	RetryDelay                     time.Duration `mapstructure:"retry_delay"`
	RubricParseTimeout             time.Duration `mapstructure:"rubric_parse_timeout"`
	GradingLLMTimeout              time.Duration `mapstructure:"grading_llm_timeout"`
	LogicReviewMaxWorkers          int           `mapstructure:"logic_review_max_workers"`
	LogicReviewMaxQuestions        int           `mapstructure:"logic_review_max_questions"`
	LogicReviewConfidenceThreshold float64       `mapstructure:"logic_review_confidence_threshold"`
	ReviewThreshold                float64       `mapstructure:"review_threshold"`
	ReviewQueueMaxItems            int           `mapstructure:"review_queue_max_items"`
	EnableReview                   bool          `mapstructure:"enable_review"`
	DisableProgressBroadcast       bool          `mapstructure:"disable_progress_broadcast"`
	ExportDir                      string        `mapstructure:"export_dir"`
}

// Resolve overlays non-zero fields of the loaded runtime config onto the
// package's documented defaults (spec.md §6 "Configuration").
// LogicReviewMaxQuestions, EnableReview and DisableProgressBroadcast are
// always copied, zero values included.
func (g GradingRuntimeConfig) Resolve() grading.GradingConfig {
	cfg := grading.DefaultGradingConfig()
	if g.BatchSize != 0 {
		cfg.BatchSize = g.BatchSize
	}
	if g.MaxConcurrentWorkers != 0 {
		cfg.MaxConcurrentWorkers = g.MaxConcurrentWorkers
	}
	if g.MaxRetries != 0 {
		cfg.MaxRetries = g.MaxRetries
	}
	if g.RetryDelay != 0 {
		cfg.RetryDelay = g.RetryDelay
	}
	if g.RubricParseTimeout != 0 {
		cfg.RubricParseTimeout = g.RubricParseTimeout
	}
	if g.GradingLLMTimeout != 0 {
		cfg.GradingLLMTimeout = g.GradingLLMTimeout
	}
	if g.LogicReviewMaxWorkers != 0 {
		cfg.LogicReviewMaxWorkers = g.LogicReviewMaxWorkers
	}
	cfg.LogicReviewMaxQuestions = g.LogicReviewMaxQuestions
	if g.LogicReviewConfidenceThreshold != 0 {
		cfg.LogicReviewConfidenceThreshold = g.LogicReviewConfidenceThreshold
	}
	if g.ReviewThreshold != 0 {
		cfg.ReviewThreshold = g.ReviewThreshold
	}
	if g.ReviewQueueMaxItems != 0 {
		cfg.ReviewQueueMaxItems = g.ReviewQueueMaxItems
	}
	cfg.EnableReview = g.EnableReview
	cfg.DisableProgressBroadcast = g.DisableProgressBroadcast
	if g.ExportDir != "" {
		cfg.ExportDir = g.ExportDir
	}
	return cfg
}

// Load loads configuration from an optional YAML file, environment
// variables, and documented defaults. Environment variables take
// precedence over the file, and the file over the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/grading")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//nolint:errcheck
	viper.BindEnv("database.url", "DATABASE_URL")
	//nolint:errcheck
	viper.BindEnv("redis.url", "REDIS_URL")
	//nolint:errcheck
	viper.BindEnv("server.port", "PORT")
	//nolint:errcheck
	viper.BindEnv("logging.level", "LOG_LEVEL")
	//nolint:errcheck
	viper.BindEnv("logging.format", "LOG_FORMAT")
	//nolint:errcheck
	viper.BindEnv("blob_storage.bucket_name", "BLOB_STORAGE_BUCKET_NAME")
	//nolint:errcheck
	viper.BindEnv("blob_storage.access_key_id", "BLOB_STORAGE_ACCESS_KEY_ID")
	//nolint:errcheck
	viper.BindEnv("blob_storage.secret_access_key", "BLOB_STORAGE_SECRET_ACCESS_KEY")
	//nolint:errcheck
	viper.BindEnv("scoring.api_key", "ANTHROPIC_API_KEY")
	//nolint:errcheck
	viper.BindEnv("scoring.model", "SCORING_MODEL")
	//nolint:errcheck
	viper.BindEnv("auth.jwt_secret", "JWT_SECRET")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks invariants Load cannot express via defaults alone.
func (c *Config) Validate() error {
	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("app.name", "grading-orchestrator")
	viper.SetDefault("app.version", "0.1.0")

	viper.SetDefault("environment", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("server.cors_allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.auto_migrate", false)

	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("redis.stream_name", "grading:batch:jobs")
	viper.SetDefault("redis.consumer_group", "grading-workers")

	viper.SetDefault("blob_storage.provider", "s3")
	viper.SetDefault("blob_storage.use_path_style", false)

	viper.SetDefault("scoring.provider", "anthropic")
	viper.SetDefault("scoring.model", "claude-sonnet-4-5")
	viper.SetDefault("scoring.timeout", "120s")

	viper.SetDefault("auth.jwt_issuer", "grading-orchestrator")
	viper.SetDefault("auth.token_ttl", "24h")

	viper.SetDefault("grading.batch_size", 1000)
	viper.SetDefault("grading.max_concurrent_workers", 5)
	viper.SetDefault("grading.max_retries", 2)
	viper.SetDefault("grading.retry_delay", "1s")
	viper.SetDefault("grading.rubric_parse_timeout", "600s")
	viper.SetDefault("grading.grading_llm_timeout", "120s")
	viper.SetDefault("grading.logic_review_max_workers", 3)
	viper.SetDefault("grading.logic_review_confidence_threshold", 0.7)
	viper.SetDefault("grading.review_threshold", 0.7)
	viper.SetDefault("grading.review_queue_max_items", 200)
	viper.SetDefault("grading.enable_review", true)
	viper.SetDefault("grading.export_dir", "./export")

	viper.SetDefault("class_system.timeout", "10s")

	viper.SetDefault("clickhouse.host", "localhost")
	viper.SetDefault("clickhouse.port", 9000)
	viper.SetDefault("clickhouse.user", "default")
	viper.SetDefault("clickhouse.database", "default")

	viper.SetDefault("rule_upgrade.mining_window", "168h")
	viper.SetDefault("rule_upgrade.require_approval", true)
}

// GetClickHouseURL returns the ClickHouse connection URL, preferring an
// explicit URL over the individual host/port/user fields.
func (c *Config) GetClickHouseURL() string {
	if c.ClickHouse.URL != "" {
		return c.ClickHouse.URL
	}
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
		c.ClickHouse.User, c.ClickHouse.Password, c.ClickHouse.Host,
		c.ClickHouse.Port, c.ClickHouse.Database)
}
