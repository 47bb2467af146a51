package config

import (
	"fmt"
	"strings"
)

// MaxDeadlineBudget is the hard ceiling on any scan profile's deadline,
// in seconds. The execution environment kills anything longer.
const MaxDeadlineBudget = 600

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateProviders()...)
	errors = append(errors, c.validateScan()...)
	errors = append(errors, c.validateWeighting()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "Database port is required",
		})
	} else if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: "Redis port is required",
		})
	} else if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	if c.NATS.SubjectPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.subject_prefix",
			Message: "NATS subject prefix is required",
		})
	}

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if c.LLM.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.endpoint",
			Message: "LLM endpoint is required",
		})
	}

	if c.LLM.PrimaryModel == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.primary_model",
			Message: "LLM primary model is required",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("Invalid temperature %.2f. Must be between 0-2", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "LLM max_tokens must be at least 1",
		})
	}

	if c.LLM.Timeout < 1000 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "LLM timeout must be at least 1000ms",
		})
	}

	return errors
}

func (c *Config) validateProviders() ValidationErrors {
	var errors ValidationErrors

	orders := map[string][]string{
		"providers.crypto_order":    c.Providers.CryptoOrder,
		"providers.futures_order":   c.Providers.FuturesOrder,
		"providers.options_order":   c.Providers.OptionsOrder,
		"providers.onchain_order":   c.Providers.OnChainOrder,
		"providers.sentiment_order": c.Providers.SentimentOrder,
	}

	if len(c.Providers.CryptoOrder) == 0 {
		errors = append(errors, ValidationError{
			Field:   "providers.crypto_order",
			Message: "At least one crypto (OHLCV) provider is required",
		})
	}

	for field, order := range orders {
		for _, name := range order {
			if _, ok := c.Providers.Clients[name]; !ok {
				errors = append(errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("Provider '%s' is listed but has no client configuration", name),
				})
			}
		}
	}

	for name, client := range c.Providers.Clients {
		if !client.Enabled {
			continue
		}
		if client.RequestsPerSecond <= 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("providers.clients.%s.requests_per_second", name),
				Message: "Requests per second must be greater than 0",
			})
		}
		if client.RequestsPerMinute < 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("providers.clients.%s.requests_per_minute", name),
				Message: "Requests per minute must be at least 1",
			})
		}
		if client.Timeout < 100 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("providers.clients.%s.timeout", name),
				Message: "Per-call timeout must be at least 100ms",
			})
		}
	}

	return errors
}

func (c *Config) validateScan() ValidationErrors {
	var errors ValidationErrors

	if len(c.Scan.Profiles) == 0 {
		errors = append(errors, ValidationError{
			Field:   "scan.profiles",
			Message: "At least one scan profile is required",
		})
		return errors
	}

	if _, ok := c.Scan.Profiles[c.Scan.DefaultProfile]; !ok {
		errors = append(errors, ValidationError{
			Field:   "scan.default_profile",
			Message: fmt.Sprintf("Default profile '%s' is not defined under scan.profiles", c.Scan.DefaultProfile),
		})
	}

	for name, p := range c.Scan.Profiles {
		if p.CoinLimit < 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("scan.profiles.%s.coin_limit", name),
				Message: "Coin limit must be at least 1",
			})
		}
		if p.Concurrency < 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("scan.profiles.%s.concurrency", name),
				Message: "Concurrency must be at least 1",
			})
		}
		if p.DeadlineBudget < 30 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("scan.profiles.%s.deadline_budget", name),
				Message: "Deadline budget must be at least 30 seconds",
			})
		} else if p.DeadlineBudget > MaxDeadlineBudget {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("scan.profiles.%s.deadline_budget", name),
				Message: fmt.Sprintf("Deadline budget %ds exceeds the %ds ceiling", p.DeadlineBudget, MaxDeadlineBudget),
			})
		}
		if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("scan.profiles.%s.confidence_threshold", name),
				Message: fmt.Sprintf("Invalid confidence threshold %.2f. Must be between 0-1", p.ConfidenceThreshold),
			})
		}
		if p.FilterScope != "all" && p.FilterScope != "alt" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("scan.profiles.%s.filter_scope", name),
				Message: fmt.Sprintf("Invalid filter scope '%s'. Must be 'all' or 'alt'", p.FilterScope),
			})
		}
	}

	if c.Scan.PerCoinTimeout < 5 {
		errors = append(errors, ValidationError{
			Field:   "scan.per_coin_timeout",
			Message: "Per-coin timeout must be at least 5 seconds",
		})
	}

	return errors
}

func (c *Config) validateWeighting() ValidationErrors {
	var errors ValidationErrors

	if c.Weighting.MinWeight <= 0 {
		errors = append(errors, ValidationError{
			Field:   "weighting.min_weight",
			Message: "Minimum weight must be greater than 0",
		})
	}

	if c.Weighting.MaxWeight <= c.Weighting.MinWeight {
		errors = append(errors, ValidationError{
			Field:   "weighting.max_weight",
			Message: fmt.Sprintf("Maximum weight %.2f must be greater than minimum weight %.2f", c.Weighting.MaxWeight, c.Weighting.MinWeight),
		})
	}

	if c.Weighting.MinSamples < 1 {
		errors = append(errors, ValidationError{
			Field:   "weighting.min_samples",
			Message: "Minimum sample count must be at least 1",
		})
	}

	if c.Weighting.RollupInterval < 1 {
		errors = append(errors, ValidationError{
			Field:   "weighting.rollup_interval",
			Message: "Rollup interval must be at least 1 hour",
		})
	}

	return errors
}

func (c *Config) validateScheduler() ValidationErrors {
	var errors ValidationErrors

	if !c.Scheduler.Enabled {
		return errors
	}

	if c.Scheduler.ScanInterval < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.scan_interval",
			Message: "Scan interval must be at least 1 hour",
		})
	}

	if c.Scheduler.ScanProfile != "" {
		if _, ok := c.Scan.Profiles[c.Scheduler.ScanProfile]; !ok {
			errors = append(errors, ValidationError{
				Field:   "scheduler.scan_profile",
				Message: fmt.Sprintf("Scheduled scan profile '%s' is not defined under scan.profiles", c.Scheduler.ScanProfile),
			})
		}
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: "API port is required",
		})
	} else if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment == "production" {
		secretErrors := ValidateProductionSecrets(c)
		errors = append(errors, secretErrors...)

		if c.Database.SSLMode == "disable" {
			errors = append(errors, ValidationError{
				Field:   "database.ssl_mode",
				Message: "SSL must be enabled for database in production",
			})
		}
	}

	return errors
}

// ValidateAndLoad loads and validates configuration
// Returns the loaded config and any validation errors
// configPath can be empty to use default config locations
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
