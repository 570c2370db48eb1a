// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	AlertToken  string `yaml:"alert_token"`   // separate bot for operator alerts
	AlertChatID int64  `yaml:"alert_chat_id"` // chat receiving error-level log events
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

// RuleConfig is one provider's price discovery rule. All thresholds are
// operator-tuned; nothing numeric is hard-coded in the selection logic.
type RuleConfig struct {
	Strategy           string `yaml:"strategy"` // cheapest | nearest_from_above
	PriceCap           int64  `yaml:"price_cap"`
	MinAvailable       int    `yaml:"min_available"`
	SecondaryCap       int64  `yaml:"secondary_cap"`
	StrictMinAvailable int    `yaml:"strict_min_available"`
}

type ProviderConfig struct {
	Name     string     `yaml:"name"`
	BaseURL  string     `yaml:"base_url"`
	APIKey   string     `yaml:"api_key"`
	Country  string     `yaml:"country"`
	Services []string   `yaml:"services"`
	Rule     RuleConfig `yaml:"rule"`
}

type PaymentConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	SiteURL     string `yaml:"site_url"` // public base for back-redirects
}

type MarketConfig struct {
	Timeout         time.Duration `yaml:"timeout"`       // activation deadline
	PollInterval    time.Duration `yaml:"poll_interval"` // status poll cadence
	CancelGrace     time.Duration `yaml:"cancel_grace"`  // 0 = two poll intervals
	AcquireAttempts int           `yaml:"acquire_attempts"`
	PriceStep       int64         `yaml:"price_step"` // ceiling raise per retry, centavos
	ReferralPercent int64         `yaml:"referral_percent"`
	RateLimit       int           `yaml:"rate_limit"` // purchases per account per window
	RateWindow      time.Duration `yaml:"rate_window"`
}

type SchedulerConfig struct {
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
}

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	HTTP      HTTPConfig       `yaml:"http"`
	Providers []ProviderConfig `yaml:"providers"`
	Payment   PaymentConfig    `yaml:"payment"`
	Market    MarketConfig     `yaml:"market"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Market.Timeout <= 0 {
		cfg.Market.Timeout = 23 * time.Minute
	}
	if cfg.Market.PollInterval <= 0 {
		cfg.Market.PollInterval = 5 * time.Second
	}
	if cfg.Market.AcquireAttempts <= 0 {
		cfg.Market.AcquireAttempts = 3
	}
	if cfg.Market.RateWindow <= 0 {
		cfg.Market.RateWindow = time.Minute
	}
	if cfg.Scheduler.RecoveryInterval <= 0 {
		cfg.Scheduler.RecoveryInterval = 5 * time.Minute
	}

	// Fail fast on missing credentials; nothing downstream can limp along
	// without these.
	if cfg.Telegram.Token == "" {
		return nil, errors.New("telegram.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.AccessToken == "" {
		return nil, errors.New("payment.access_token is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	for i, p := range cfg.Providers {
		if p.Name == "" || p.APIKey == "" || p.BaseURL == "" {
			return nil, fmt.Errorf("providers[%d]: name, base_url and api_key are required", i)
		}
		if len(p.Services) == 0 {
			return nil, fmt.Errorf("providers[%d] (%s): no services configured", i, p.Name)
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
