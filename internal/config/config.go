package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the shared Redis instance holding rate-limit
// buckets, locks and the job stream.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// SearchConfig configures the people-search API client.
type SearchConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Key               string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	RevealEnabled     bool    `yaml:"reveal_enabled" mapstructure:"reveal_enabled"`
}

// SheetsConfig configures the spreadsheet writer.
type SheetsConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	AccessToken    string `yaml:"access_token" mapstructure:"access_token"`
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	ThrottleMs     int    `yaml:"throttle_ms" mapstructure:"throttle_ms"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxBackoffSecs int    `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// AnthropicConfig configures the lead summary model.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	HaikuModel       string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SummaryMaxTokens int64  `yaml:"summary_max_tokens" mapstructure:"summary_max_tokens"`
}

// BucketConfig describes one token bucket.
type BucketConfig struct {
	MaxTokens    float64 `yaml:"max_tokens" mapstructure:"max_tokens"`
	RefillPerSec float64 `yaml:"refill_per_sec" mapstructure:"refill_per_sec"`
}

// RateLimitConfig configures the shared search API buckets.
type RateLimitConfig struct {
	Global       BucketConfig `yaml:"global" mapstructure:"global"`
	User         BucketConfig `yaml:"user" mapstructure:"user"`
	Campaign     BucketConfig `yaml:"campaign" mapstructure:"campaign"`
	IdleTTLSecs  int          `yaml:"idle_ttl_secs" mapstructure:"idle_ttl_secs"`
	MaxWaitSecs  int          `yaml:"max_wait_secs" mapstructure:"max_wait_secs"`
	KeyNamespace string       `yaml:"key_namespace" mapstructure:"key_namespace"`
}

// FetchConfig tunes the lead-fetch orchestrator.
type FetchConfig struct {
	LockTTLSecs            int `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
	PageRetryAttempts      int `yaml:"page_retry_attempts" mapstructure:"page_retry_attempts"`
	PageRetryInitialMs     int `yaml:"page_retry_initial_ms" mapstructure:"page_retry_initial_ms"`
	PageRetryMaxSecs       int `yaml:"page_retry_max_secs" mapstructure:"page_retry_max_secs"`
	PrepareConcurrency     int `yaml:"prepare_concurrency" mapstructure:"prepare_concurrency"`
	InsertChunkSize        int `yaml:"insert_chunk_size" mapstructure:"insert_chunk_size"`
	MaxPageSize            int `yaml:"max_page_size" mapstructure:"max_page_size"`
	ConservePageSizeCap    int `yaml:"conserve_page_size_cap" mapstructure:"conserve_page_size_cap"`
	ConserveMinPages       int `yaml:"conserve_min_pages" mapstructure:"conserve_min_pages"`
	ConserveMaxPages       int `yaml:"conserve_max_pages" mapstructure:"conserve_max_pages"`
	ConserveEmptyThreshold int `yaml:"conserve_empty_threshold" mapstructure:"conserve_empty_threshold"`
	BalancedMinPages       int `yaml:"balanced_min_pages" mapstructure:"balanced_min_pages"`
	BalancedMaxPages       int `yaml:"balanced_max_pages" mapstructure:"balanced_max_pages"`
	BalancedEmptyThreshold int `yaml:"balanced_empty_threshold" mapstructure:"balanced_empty_threshold"`
}

// WorkerConfig configures the queue consumer.
type WorkerConfig struct {
	Concurrency      int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBaseSecs    int    `yaml:"retry_base_secs" mapstructure:"retry_base_secs"`
	Stream           string `yaml:"stream" mapstructure:"stream"`
	Group            string `yaml:"group" mapstructure:"group"`
	Consumer         string `yaml:"consumer" mapstructure:"consumer"`
	BlockMs          int    `yaml:"block_ms" mapstructure:"block_ms"`
	ReclaimIdleSecs  int    `yaml:"reclaim_idle_secs" mapstructure:"reclaim_idle_secs"`
	SweepSpec        string `yaml:"sweep_spec" mapstructure:"sweep_spec"`
	StaleJobMinutes  int    `yaml:"stale_job_minutes" mapstructure:"stale_job_minutes"`
	ShutdownTimeoutS int    `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures job failure alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DLQThreshold         int     `yaml:"dlq_threshold" mapstructure:"dlq_threshold"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckSpec            string  `yaml:"check_spec" mapstructure:"check_spec"`
	CooldownMinutes      int     `yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("search.base_url", "https://api.apollo.io/api/v1")
	v.SetDefault("search.key", "")
	v.SetDefault("search.timeout_secs", 30)
	v.SetDefault("search.requests_per_second", 5.0)
	v.SetDefault("search.burst", 5)
	v.SetDefault("search.reveal_enabled", true)

	v.SetDefault("sheets.base_url", "https://sheets.googleapis.com/v4")
	v.SetDefault("sheets.access_token", "")
	v.SetDefault("sheets.batch_size", 500)
	v.SetDefault("sheets.throttle_ms", 1000)
	v.SetDefault("sheets.max_attempts", 5)
	v.SetDefault("sheets.max_backoff_secs", 30)

	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.summary_max_tokens", 150)

	v.SetDefault("ratelimit.global.max_tokens", 100)
	v.SetDefault("ratelimit.global.refill_per_sec", 10)
	v.SetDefault("ratelimit.user.max_tokens", 30)
	v.SetDefault("ratelimit.user.refill_per_sec", 2)
	v.SetDefault("ratelimit.campaign.max_tokens", 10)
	v.SetDefault("ratelimit.campaign.refill_per_sec", 1)
	v.SetDefault("ratelimit.idle_ttl_secs", 3600)
	v.SetDefault("ratelimit.max_wait_secs", 120)
	v.SetDefault("ratelimit.key_namespace", "rate_limit")

	v.SetDefault("fetch.lock_ttl_secs", 300)
	v.SetDefault("fetch.page_retry_attempts", 5)
	v.SetDefault("fetch.page_retry_initial_ms", 1000)
	v.SetDefault("fetch.page_retry_max_secs", 30)
	v.SetDefault("fetch.prepare_concurrency", 5)
	v.SetDefault("fetch.insert_chunk_size", 500)
	v.SetDefault("fetch.max_page_size", 100)
	v.SetDefault("fetch.conserve_page_size_cap", 25)
	v.SetDefault("fetch.conserve_min_pages", 10)
	v.SetDefault("fetch.conserve_max_pages", 20)
	v.SetDefault("fetch.conserve_empty_threshold", 2)
	v.SetDefault("fetch.balanced_min_pages", 30)
	v.SetDefault("fetch.balanced_max_pages", 50)
	v.SetDefault("fetch.balanced_empty_threshold", 3)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.retry_base_secs", 30)
	v.SetDefault("worker.stream", "leadfetch:jobs")
	v.SetDefault("worker.group", "leadfetch-workers")
	v.SetDefault("worker.consumer", "")
	v.SetDefault("worker.block_ms", 5000)
	v.SetDefault("worker.reclaim_idle_secs", 600)
	v.SetDefault("worker.sweep_spec", "@every 30s")
	v.SetDefault("worker.stale_job_minutes", 30)
	v.SetDefault("worker.shutdown_timeout_secs", 30)

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.dlq_threshold", 10)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.check_spec", "@every 5m")
	v.SetDefault("monitoring.cooldown_minutes", 60)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
