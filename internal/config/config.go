package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	AI          AIConfig       `mapstructure:"ai"`
	Pipeline    PipelineConfig `mapstructure:"pipeline"`
	Tuning      TuningConfig   `mapstructure:"tuning"`
	Security    SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	DatabaseURL  string `mapstructure:"database_url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AIConfig points at the external text-generation service the reasoning
// chain calls as a black box.
type AIConfig struct {
	ServiceURL       string `mapstructure:"service_url"`
	APIKey           string `mapstructure:"api_key"`
	Model            string `mapstructure:"model"`
	MaxTokensPerStep int    `mapstructure:"max_tokens_per_step"`
	Timeout          string `mapstructure:"timeout"`
	MaxRetries       int    `mapstructure:"max_retries"`
}

type PipelineConfig struct {
	LookbackDays            int `mapstructure:"lookback_days"`
	TrendLookbackDays       int `mapstructure:"trend_lookback_days"`
	CooldownHours           int `mapstructure:"cooldown_hours"`
	PredictiveCooldownHours int `mapstructure:"predictive_cooldown_hours"`
	MaxDetectorWorkers      int `mapstructure:"max_detector_workers"`
	MaxChainWorkers         int `mapstructure:"max_chain_workers"`
	PredictionMaxDays       int `mapstructure:"prediction_max_days"`
}

type TuningConfig struct {
	LookbackDays int     `mapstructure:"lookback_days"`
	MinAlerts    int     `mapstructure:"min_alerts"`
	StepPercent  float64 `mapstructure:"step_percent"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry string `mapstructure:"jwt_expiry"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind specific environment variables
	if err := viper.BindEnv("ai.api_key", "AI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind AI_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	environment := strings.ToLower(config.Environment)

	// Validate JWT secret in non-development environments
	if environment != "development" && config.Security.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	// Validate duration strings up front so a bad value fails at startup
	// instead of mid-pipeline
	if config.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(config.Security.JWTExpiry); err != nil {
			return nil, fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}
	if config.AI.Timeout != "" {
		if _, err := time.ParseDuration(config.AI.Timeout); err != nil {
			return nil, fmt.Errorf("invalid AI timeout duration: %w", err)
		}
	}

	if config.Tuning.StepPercent <= 0 || config.Tuning.StepPercent >= 1 {
		return nil, fmt.Errorf("tuning step_percent must be in (0,1), got %v", config.Tuning.StepPercent)
	}

	// Update config with normalized environment
	config.Environment = environment

	return &config, nil
}

// AITimeout returns the parsed AI call timeout.
func (c *Config) AITimeout() time.Duration {
	d, err := time.ParseDuration(c.AI.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "moodlight")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// AI service
	viper.SetDefault("ai.service_url", "https://api.anthropic.com/v1/messages")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("ai.max_tokens_per_step", 600)
	viper.SetDefault("ai.timeout", "30s")
	viper.SetDefault("ai.max_retries", 2)

	// Pipeline
	viper.SetDefault("pipeline.lookback_days", 7)
	viper.SetDefault("pipeline.trend_lookback_days", 7)
	viper.SetDefault("pipeline.cooldown_hours", 6)
	viper.SetDefault("pipeline.predictive_cooldown_hours", 24)
	viper.SetDefault("pipeline.max_detector_workers", 0) // 0 = size from host CPUs
	viper.SetDefault("pipeline.max_chain_workers", 3)
	viper.SetDefault("pipeline.prediction_max_days", 7)

	// Adaptive tuning
	viper.SetDefault("tuning.lookback_days", 30)
	viper.SetDefault("tuning.min_alerts", 10)
	viper.SetDefault("tuning.step_percent", 0.10)

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
}
