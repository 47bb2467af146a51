package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Bots       BotsConfig       `mapstructure:"bots"`
	Outcome    OutcomeConfig    `mapstructure:"outcome"`
	Weighting  WeightingConfig  `mapstructure:"weighting"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"` // "cryptooracle"
}

// LLMConfig contains LLM gateway settings used by AI refinement
type LLMConfig struct {
	Endpoint           string  `mapstructure:"endpoint"`            // "http://localhost:8080/v1/chat/completions"
	EmbeddingsEndpoint string  `mapstructure:"embeddings_endpoint"` // "http://localhost:8080/v1/embeddings"
	PrimaryModel       string  `mapstructure:"primary_model"`       // "claude-sonnet-4-20250514"
	FallbackModel      string  `mapstructure:"fallback_model"`      // "gpt-4-turbo"
	EmbeddingsModel    string  `mapstructure:"embeddings_model"`    // "text-embedding-3-small"
	Temperature        float64 `mapstructure:"temperature"`         // 0.7
	MaxTokens          int     `mapstructure:"max_tokens"`          // 2000
	Timeout            int     `mapstructure:"timeout"`             // 30000 (ms)
}

// ProvidersConfig contains the per-kind fallback orders and
// the catalog of configured market-data clients.
type ProvidersConfig struct {
	CryptoOrder    []string                        `mapstructure:"crypto_order"`    // OHLCV + quotes
	FuturesOrder   []string                        `mapstructure:"futures_order"`   // funding, open interest
	OptionsOrder   []string                        `mapstructure:"options_order"`   // max pain, put/call
	OnChainOrder   []string                        `mapstructure:"onchain_order"`   // whale flows, active addresses
	SentimentOrder []string                        `mapstructure:"sentiment_order"` // social scores
	Clients        map[string]ProviderClientConfig `mapstructure:"clients"`
}

// ProviderClientConfig contains settings for a single market-data client
type ProviderClientConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
	Timeout           int     `mapstructure:"timeout"`   // ms, per-call deadline
	CacheTTL          int     `mapstructure:"cache_ttl"` // seconds
	Cooldown          int     `mapstructure:"cooldown"`  // seconds after a 429/5xx burst
}

// ScanConfig contains scan orchestration settings
type ScanConfig struct {
	DefaultProfile string                       `mapstructure:"default_profile"`
	PerCoinTimeout int                          `mapstructure:"per_coin_timeout"` // seconds
	CancelGrace    int                          `mapstructure:"cancel_grace"`     // seconds in-flight tasks get after the deadline
	Stablecoins    []string                     `mapstructure:"stablecoins"`
	MajorCoins     []string                     `mapstructure:"major_coins"` // excluded when filter_scope=alt
	Profiles       map[string]ScanProfileConfig `mapstructure:"profiles"`
}

// ScanProfileConfig contains the per-scan-type knobs
type ScanProfileConfig struct {
	CoinLimit           int     `mapstructure:"coin_limit"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	DeadlineBudget      int     `mapstructure:"deadline_budget"` // seconds, hard ceiling 600
	Concurrency         int     `mapstructure:"concurrency"`
	UseLLM              bool    `mapstructure:"use_llm"`
	FilterScope         string  `mapstructure:"filter_scope"` // "all" or "alt"
}

// BotsConfig contains strategy-bot bank settings
type BotsConfig struct {
	Disabled      []string `mapstructure:"disabled"`       // bot names forced off regardless of accuracy state
	InitialWeight float64  `mapstructure:"initial_weight"` // weight for bots with no history
	OverridesPath string   `mapstructure:"overrides_path"` // optional YAML file with per-bot parameter overrides
}

// OutcomeConfig contains price sampling and outcome evaluation settings
type OutcomeConfig struct {
	SamplingInterval   int `mapstructure:"sampling_interval"`   // minutes between price snapshots
	EvaluationInterval int `mapstructure:"evaluation_interval"` // minutes between TP/SL + horizon sweeps
	PendingBatchSize   int `mapstructure:"pending_batch_size"`  // max open predictions fetched per sweep
}

// WeightingConfig contains adaptive weighting settings
type WeightingConfig struct {
	RollupInterval int     `mapstructure:"rollup_interval"` // hours between metric recomputes
	AdjustInterval int     `mapstructure:"adjust_interval"` // hours between weight adjustments
	MinSamples     int     `mapstructure:"min_samples"`     // predictions required before a weight moves
	MinWeight      float64 `mapstructure:"min_weight"`
	MaxWeight      float64 `mapstructure:"max_weight"`
}

// SchedulerConfig contains cadence settings for background jobs
type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ScanInterval int    `mapstructure:"scan_interval"` // hours between scheduled scans
	ScanProfile  string `mapstructure:"scan_profile"`  // profile used for scheduled scans
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("CRYPTOORACLE")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration using comprehensive validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "CryptoOracle")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "cryptooracle")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "cryptooracle")

	// LLM defaults
	v.SetDefault("llm.endpoint", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("llm.embeddings_endpoint", "http://localhost:8080/v1/embeddings")
	v.SetDefault("llm.primary_model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.fallback_model", "gpt-4-turbo")
	v.SetDefault("llm.embeddings_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout", 30000)

	// Provider fallback orders
	v.SetDefault("providers.crypto_order", []string{"coingecko", "binance", "cryptocompare"})
	v.SetDefault("providers.futures_order", []string{"coinalyze", "binance"})
	v.SetDefault("providers.options_order", []string{"deribit"})
	v.SetDefault("providers.onchain_order", []string{"blockflow"})
	v.SetDefault("providers.sentiment_order", []string{"lunarcrush"})

	// Provider client defaults. Free-tier budgets; paid keys raise these in config.
	v.SetDefault("providers.clients.coingecko.enabled", true)
	v.SetDefault("providers.clients.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("providers.clients.coingecko.requests_per_second", 0.5)
	v.SetDefault("providers.clients.coingecko.requests_per_minute", 30)
	v.SetDefault("providers.clients.coingecko.burst", 2)
	v.SetDefault("providers.clients.coingecko.timeout", 8000)
	v.SetDefault("providers.clients.coingecko.cache_ttl", 60)
	v.SetDefault("providers.clients.coingecko.cooldown", 60)

	v.SetDefault("providers.clients.binance.enabled", true)
	v.SetDefault("providers.clients.binance.requests_per_second", 10)
	v.SetDefault("providers.clients.binance.requests_per_minute", 1100)
	v.SetDefault("providers.clients.binance.burst", 20)
	v.SetDefault("providers.clients.binance.timeout", 8000)
	v.SetDefault("providers.clients.binance.cache_ttl", 30)
	v.SetDefault("providers.clients.binance.cooldown", 30)

	v.SetDefault("providers.clients.cryptocompare.enabled", true)
	v.SetDefault("providers.clients.cryptocompare.base_url", "https://min-api.cryptocompare.com/data")
	v.SetDefault("providers.clients.cryptocompare.requests_per_second", 2)
	v.SetDefault("providers.clients.cryptocompare.requests_per_minute", 100)
	v.SetDefault("providers.clients.cryptocompare.burst", 4)
	v.SetDefault("providers.clients.cryptocompare.timeout", 8000)
	v.SetDefault("providers.clients.cryptocompare.cache_ttl", 60)
	v.SetDefault("providers.clients.cryptocompare.cooldown", 60)

	v.SetDefault("providers.clients.coinalyze.enabled", true)
	v.SetDefault("providers.clients.coinalyze.base_url", "https://api.coinalyze.net/v1")
	v.SetDefault("providers.clients.coinalyze.requests_per_second", 1)
	v.SetDefault("providers.clients.coinalyze.requests_per_minute", 40)
	v.SetDefault("providers.clients.coinalyze.burst", 2)
	v.SetDefault("providers.clients.coinalyze.timeout", 5000)
	v.SetDefault("providers.clients.coinalyze.cache_ttl", 120)
	v.SetDefault("providers.clients.coinalyze.cooldown", 60)

	v.SetDefault("providers.clients.deribit.enabled", true)
	v.SetDefault("providers.clients.deribit.base_url", "https://www.deribit.com/api/v2")
	v.SetDefault("providers.clients.deribit.requests_per_second", 5)
	v.SetDefault("providers.clients.deribit.requests_per_minute", 200)
	v.SetDefault("providers.clients.deribit.burst", 5)
	v.SetDefault("providers.clients.deribit.timeout", 5000)
	v.SetDefault("providers.clients.deribit.cache_ttl", 300)
	v.SetDefault("providers.clients.deribit.cooldown", 60)

	v.SetDefault("providers.clients.blockflow.enabled", true)
	v.SetDefault("providers.clients.blockflow.base_url", "https://api.blockflow.dev/v1")
	v.SetDefault("providers.clients.blockflow.requests_per_second", 1)
	v.SetDefault("providers.clients.blockflow.requests_per_minute", 30)
	v.SetDefault("providers.clients.blockflow.burst", 2)
	v.SetDefault("providers.clients.blockflow.timeout", 5000)
	v.SetDefault("providers.clients.blockflow.cache_ttl", 600)
	v.SetDefault("providers.clients.blockflow.cooldown", 120)

	v.SetDefault("providers.clients.lunarcrush.enabled", true)
	v.SetDefault("providers.clients.lunarcrush.base_url", "https://lunarcrush.com/api4/public")
	v.SetDefault("providers.clients.lunarcrush.requests_per_second", 0.2)
	v.SetDefault("providers.clients.lunarcrush.requests_per_minute", 10)
	v.SetDefault("providers.clients.lunarcrush.burst", 1)
	v.SetDefault("providers.clients.lunarcrush.timeout", 6000)
	v.SetDefault("providers.clients.lunarcrush.cache_ttl", 900)
	v.SetDefault("providers.clients.lunarcrush.cooldown", 300)

	// Scan defaults
	v.SetDefault("scan.default_profile", "standard")
	v.SetDefault("scan.per_coin_timeout", 90)
	v.SetDefault("scan.cancel_grace", 5)
	v.SetDefault("scan.stablecoins", []string{
		"USDT", "USDC", "DAI", "BUSD", "TUSD", "USDP", "USDD", "FDUSD",
		"PYUSD", "GUSD", "FRAX", "LUSD", "USDE", "EURS", "EURT",
	})
	v.SetDefault("scan.major_coins", []string{"BTC", "ETH"})

	v.SetDefault("scan.profiles.quick.coin_limit", 25)
	v.SetDefault("scan.profiles.quick.confidence_threshold", 0.0)
	v.SetDefault("scan.profiles.quick.deadline_budget", 180)
	v.SetDefault("scan.profiles.quick.concurrency", 8)
	v.SetDefault("scan.profiles.quick.use_llm", false)
	v.SetDefault("scan.profiles.quick.filter_scope", "all")

	v.SetDefault("scan.profiles.standard.coin_limit", 100)
	v.SetDefault("scan.profiles.standard.confidence_threshold", 0.0)
	v.SetDefault("scan.profiles.standard.deadline_budget", 480)
	v.SetDefault("scan.profiles.standard.concurrency", 5)
	v.SetDefault("scan.profiles.standard.use_llm", true)
	v.SetDefault("scan.profiles.standard.filter_scope", "all")

	v.SetDefault("scan.profiles.deep.coin_limit", 100)
	v.SetDefault("scan.profiles.deep.confidence_threshold", 0.0)
	v.SetDefault("scan.profiles.deep.deadline_budget", 600)
	v.SetDefault("scan.profiles.deep.concurrency", 5)
	v.SetDefault("scan.profiles.deep.use_llm", true)
	v.SetDefault("scan.profiles.deep.filter_scope", "all")

	v.SetDefault("scan.profiles.alt_focus.coin_limit", 60)
	v.SetDefault("scan.profiles.alt_focus.confidence_threshold", 0.0)
	v.SetDefault("scan.profiles.alt_focus.deadline_budget", 480)
	v.SetDefault("scan.profiles.alt_focus.concurrency", 5)
	v.SetDefault("scan.profiles.alt_focus.use_llm", true)
	v.SetDefault("scan.profiles.alt_focus.filter_scope", "alt")

	// Bot defaults
	v.SetDefault("bots.initial_weight", 1.0)
	v.SetDefault("bots.overrides_path", "")

	// Outcome defaults
	v.SetDefault("outcome.sampling_interval", 15)
	v.SetDefault("outcome.evaluation_interval", 30)
	v.SetDefault("outcome.pending_batch_size", 500)

	// Weighting defaults
	v.SetDefault("weighting.rollup_interval", 6)
	v.SetDefault("weighting.adjust_interval", 24)
	v.SetDefault("weighting.min_samples", 10)
	v.SetDefault("weighting.min_weight", 0.2)
	v.SetDefault("weighting.max_weight", 2.0)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.scan_interval", 12)
	v.SetDefault("scheduler.scan_profile", "standard")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the LLM timeout as time.Duration
func (c *LLMConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetTimeout returns the per-call deadline as time.Duration
func (c *ProviderClientConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetCacheTTL returns the cache TTL as time.Duration
func (c *ProviderClientConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetCooldown returns the post-failure cooldown as time.Duration
func (c *ProviderClientConfig) GetCooldown() time.Duration {
	return time.Duration(c.Cooldown) * time.Second
}

// GetDeadlineBudget returns the profile deadline as time.Duration
func (c *ScanProfileConfig) GetDeadlineBudget() time.Duration {
	return time.Duration(c.DeadlineBudget) * time.Second
}

// GetPerCoinTimeout returns the per-coin task deadline as time.Duration
func (c *ScanConfig) GetPerCoinTimeout() time.Duration {
	return time.Duration(c.PerCoinTimeout) * time.Second
}

// GetCancelGrace returns the post-deadline grace as time.Duration
func (c *ScanConfig) GetCancelGrace() time.Duration {
	return time.Duration(c.CancelGrace) * time.Second
}

// Profile returns the named scan profile, falling back to the default
// profile when name is empty or unknown.
func (c *ScanConfig) Profile(name string) ScanProfileConfig {
	if name != "" {
		if p, ok := c.Profiles[name]; ok {
			return p
		}
	}
	return c.Profiles[c.DefaultProfile]
}

// GetSamplingInterval returns the price sampling interval as time.Duration
func (c *OutcomeConfig) GetSamplingInterval() time.Duration {
	return time.Duration(c.SamplingInterval) * time.Minute
}

// GetEvaluationInterval returns the outcome sweep interval as time.Duration
func (c *OutcomeConfig) GetEvaluationInterval() time.Duration {
	return time.Duration(c.EvaluationInterval) * time.Minute
}

// GetRollupInterval returns the metric recompute interval as time.Duration
func (c *WeightingConfig) GetRollupInterval() time.Duration {
	return time.Duration(c.RollupInterval) * time.Hour
}

// GetAdjustInterval returns the weight adjustment interval as time.Duration
func (c *WeightingConfig) GetAdjustInterval() time.Duration {
	return time.Duration(c.AdjustInterval) * time.Hour
}

// GetScanInterval returns the scheduled scan cadence as time.Duration
func (c *SchedulerConfig) GetScanInterval() time.Duration {
	return time.Duration(c.ScanInterval) * time.Hour
}
