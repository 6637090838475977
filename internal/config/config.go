// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	DB         DBConfig         `mapstructure:"db"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ResolverConfig governs duplicate detection thresholds.
type ResolverConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MinPhoneDigits      int     `mapstructure:"min_phone_digits"`
	NameWeight          float64 `mapstructure:"name_weight"`
	AddressWeight       float64 `mapstructure:"address_weight"`
	PhoneNationalLength int     `mapstructure:"phone_national_length"`
}

// ClassifierConfig governs email labeling.
type ClassifierConfig struct {
	RolePrefixes    []string `mapstructure:"role_prefixes"`
	BlockedDomains  []string `mapstructure:"blocked_domains"`
	IncludePersonal bool     `mapstructure:"include_personal"`
}

// CrawlConfig governs crawl-state and fetch behavior.
type CrawlConfig struct {
	UserAgent            string   `mapstructure:"user_agent"`
	PerDomainIntervalMs  int      `mapstructure:"per_domain_interval_ms"`
	RobotsTimeoutSeconds int      `mapstructure:"robots_timeout_seconds"`
	FetchTimeoutSeconds  int      `mapstructure:"fetch_timeout_seconds"`
	ContactKeywords      []string `mapstructure:"contact_keywords"`
	MaxContactPages      int      `mapstructure:"max_contact_pages"`
}

// WorkersConfig sizes the pipeline pool.
type WorkersConfig struct {
	Count int `mapstructure:"count"`
}

// DBConfig controls the optional Postgres persistence layer.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	RecordsTable string `mapstructure:"records_table"`
	CrawlTable   string `mapstructure:"crawl_table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MAPLEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("resolver.similarity_threshold", 0.75)
	v.SetDefault("resolver.min_phone_digits", 7)
	v.SetDefault("resolver.name_weight", 0.6)
	v.SetDefault("resolver.address_weight", 0.4)
	v.SetDefault("resolver.phone_national_length", 0)
	v.SetDefault("classifier.include_personal", false)
	v.SetDefault("crawl.user_agent", "mapleads-bot/0.1")
	v.SetDefault("crawl.per_domain_interval_ms", 2000)
	v.SetDefault("crawl.robots_timeout_seconds", 5)
	v.SetDefault("crawl.fetch_timeout_seconds", 15)
	v.SetDefault("crawl.max_contact_pages", 5)
	v.SetDefault("workers.count", 4)
	v.SetDefault("db.records_table", "business_records")
	v.SetDefault("db.crawl_table", "crawl_entries")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Resolver.SimilarityThreshold <= 0 || c.Resolver.SimilarityThreshold > 1 {
		return fmt.Errorf("resolver.similarity_threshold must be in (0, 1]")
	}
	if c.Resolver.MinPhoneDigits <= 0 {
		return fmt.Errorf("resolver.min_phone_digits must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Crawl.PerDomainIntervalMs <= 0 {
		return fmt.Errorf("crawl.per_domain_interval_ms must be > 0")
	}
	if c.Crawl.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.fetch_timeout_seconds must be > 0")
	}
	return nil
}

// PerDomainInterval returns the minimum inter-request delay per domain.
func (c Config) PerDomainInterval() time.Duration {
	return time.Duration(c.Crawl.PerDomainIntervalMs) * time.Millisecond
}

// RobotsTimeout returns the robots.txt fetch budget.
func (c Config) RobotsTimeout() time.Duration {
	return time.Duration(c.Crawl.RobotsTimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawl.FetchTimeoutSeconds) * time.Second
}
