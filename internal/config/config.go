// Package config loads service configuration from defaults, an optional file and RIPLIMIT_*
// environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Refund   RefundConfig   `mapstructure:"refund"`
	Secure   SecureConfig   `mapstructure:"secure"`
	Orders   OrdersConfig   `mapstructure:"orders"`
	Retry    RetryConfig    `mapstructure:"retry"`
}

type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig: an empty URL runs the service on the in-memory store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// HighestTTL bounds how long a cached highest bid lives.
	HighestTTL time.Duration `mapstructure:"highest_ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SweepConfig struct {
	Cron          string        `mapstructure:"cron"`
	Timezone      string        `mapstructure:"timezone"`
	PageSize      int           `mapstructure:"page_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`
}

type RefundConfig struct {
	MinAmount      int64  `mapstructure:"min_amount"`
	INRPerRipLimit string `mapstructure:"inr_per_riplimit"`
	FeeINR         string `mapstructure:"fee_inr"`
	Timezone       string `mapstructure:"timezone"`
}

type SecureConfig struct {
	BankKey string `mapstructure:"bank_key"`
}

type OrdersConfig struct {
	NodeID int64 `mapstructure:"node_id"`
}

type RetryConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.highest_ttl", 24*time.Hour)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "riplimit.notifications")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 5*time.Second)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sweep.cron", "0 * * * *")
	v.SetDefault("sweep.timezone", "Asia/Kolkata")
	v.SetDefault("sweep.page_size", 100)
	v.SetDefault("sweep.concurrency", 4)
	v.SetDefault("sweep.settle_timeout", 30*time.Second)
	v.SetDefault("refund.min_amount", 100)
	v.SetDefault("refund.inr_per_riplimit", "1")
	v.SetDefault("refund.fee_inr", "10")
	v.SetDefault("refund.timezone", "Asia/Kolkata")
	v.SetDefault("secure.bank_key", "")
	v.SetDefault("orders.node_id", 1)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_interval", 20*time.Millisecond)
	v.SetDefault("retry.max_interval", 500*time.Millisecond)
}

// Load reads path when non-empty, then overlays RIPLIMIT_* environment variables
// (RIPLIMIT_SWEEP_PAGE_SIZE sets sweep.page_size).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RIPLIMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Sweep.PageSize <= 0 {
		errs = append(errs, errors.New("sweep.page_size must be positive"))
	}
	if c.Sweep.Concurrency <= 0 {
		errs = append(errs, errors.New("sweep.concurrency must be positive"))
	}
	if _, err := time.LoadLocation(c.Sweep.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("sweep.timezone: %w", err))
	} else if _, err := cron.ParseStandard(c.SweepSchedule()); err != nil {
		errs = append(errs, fmt.Errorf("sweep.cron: %w", err))
	}
	if c.Refund.MinAmount <= 0 {
		errs = append(errs, errors.New("refund.min_amount must be positive"))
	}
	if rate, err := decimal.NewFromString(c.Refund.INRPerRipLimit); err != nil || !rate.IsPositive() {
		errs = append(errs, fmt.Errorf("refund.inr_per_riplimit %q must be a positive decimal", c.Refund.INRPerRipLimit))
	}
	if fee, err := decimal.NewFromString(c.Refund.FeeINR); err != nil || fee.IsNegative() {
		errs = append(errs, fmt.Errorf("refund.fee_inr %q must be a non-negative decimal", c.Refund.FeeINR))
	}
	if _, err := time.LoadLocation(c.Refund.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("refund.timezone: %w", err))
	}
	if key, err := hex.DecodeString(c.Secure.BankKey); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("secure.bank_key must be 32 bytes hex-encoded"))
	}
	if c.Orders.NodeID < 0 || c.Orders.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("orders.node_id %d out of range 0-1023", c.Orders.NodeID))
	}
	if c.Retry.MaxAttempts == 0 {
		errs = append(errs, errors.New("retry.max_attempts must be positive"))
	}
	return errors.Join(errs...)
}

// SweepSchedule is the cron expression pinned to the sweep timezone.
func (c *Config) SweepSchedule() string {
	return "CRON_TZ=" + c.Sweep.Timezone + " " + c.Sweep.Cron
}

// MustDecimal parses a value already accepted by Validate.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
