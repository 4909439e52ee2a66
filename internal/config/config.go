// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Onch     OnchConfig     `mapstructure:"onch"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Register RegisterConfig `mapstructure:"register"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// OnchConfig identifies the supplier admin site and its credentials.
type OnchConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	LoginID  string `mapstructure:"login_id"`
	Password string `mapstructure:"password"`
}

// BrowserConfig governs the chromedp session pool.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	LoginWaitSec  int    `mapstructure:"login_wait_seconds"`
	MaxParallel   int    `mapstructure:"max_parallel_pages"`
}

// QueueConfig governs the work queue and its retry policy.
type QueueConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffMs      int `mapstructure:"backoff_ms"`
	RetentionCount int `mapstructure:"retention_count"`
	RetentionHours int `mapstructure:"retention_hours"`
	Depth          int `mapstructure:"depth"`
}

// CrawlConfig governs pagination/extraction behavior.
type CrawlConfig struct {
	BatchSize         int      `mapstructure:"batch_size"`
	DetailParallelism int      `mapstructure:"detail_parallelism"`
	Couriers          []string `mapstructure:"couriers"`
	SoldoutCronMin    int      `mapstructure:"soldout_cron_minutes"`
}

// RegisterConfig governs the bulk registration engine.
type RegisterConfig struct {
	RepeatCount      int `mapstructure:"repeat_count"`
	MaxRetry         int `mapstructure:"max_retry"`
	RetryDelayMs     int `mapstructure:"retry_delay_ms"`
	DialogTimeoutSec int `mapstructure:"dialog_timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for the message bus and notifications.
type PubSubConfig struct {
	ProjectID     string `mapstructure:"project_id"`
	RequestSub    string `mapstructure:"request_subscription"`
	ResponseTopic string `mapstructure:"response_topic"`
	NotifyTopic   string `mapstructure:"notify_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ONCH")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("onch.base_url", "https://www.onch3.co.kr")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.login_wait_seconds", 15)
	v.SetDefault("browser.max_parallel_pages", 2)
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_ms", 5000)
	v.SetDefault("queue.retention_count", 200)
	v.SetDefault("queue.retention_hours", 24)
	v.SetDefault("queue.depth", 128)
	v.SetDefault("crawl.batch_size", 50)
	v.SetDefault("crawl.detail_parallelism", 2)
	v.SetDefault("crawl.couriers", []string{"CJ대한통운", "롯데택배", "한진택배", "우체국택배", "로젠택배"})
	v.SetDefault("crawl.soldout_cron_minutes", 0)
	v.SetDefault("register.repeat_count", 10)
	v.SetDefault("register.max_retry", 3)
	v.SetDefault("register.retry_delay_ms", 2000)
	v.SetDefault("register.dialog_timeout_seconds", 30)
	v.SetDefault("db.table", "onch_products")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Onch.BaseURL == "" {
		return fmt.Errorf("onch.base_url is required")
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency must be > 0")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel_pages must be > 0")
	}
	if c.Register.MaxRetry <= 0 {
		return fmt.Errorf("register.max_retry must be > 0")
	}
	return nil
}

// Backoff returns the queue retry delay as a duration.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.Queue.BackoffMs) * time.Millisecond
}

// NavTimeout returns the browser navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

// DialogTimeout returns the registration dialog wait as a duration.
func (c Config) DialogTimeout() time.Duration {
	return time.Duration(c.Register.DialogTimeoutSec) * time.Second
}

// RetryDelay returns the per-page registration retry delay as a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Register.RetryDelayMs) * time.Millisecond
}

// Retention returns the completed/failed job retention window.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Queue.RetentionHours) * time.Hour
}
