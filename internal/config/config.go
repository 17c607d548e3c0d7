// Package config loads and validates scanner configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Queue     QueueConfig     `mapstructure:"queue"`
	DB        DBConfig        `mapstructure:"db"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	PageSpeed PageSpeedConfig `mapstructure:"pagespeed"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Premium   PremiumConfig   `mapstructure:"premium"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout_seconds"`
}

// QueueConfig selects and configures the scan queue backend.
type QueueConfig struct {
	Backend        string `mapstructure:"backend"` // "memory" or "pubsub"
	Depth          int    `mapstructure:"depth"`
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory job store.
type DBConfig struct {
	DSN              string `mapstructure:"dsn"`
	MaxConns         int    `mapstructure:"max_conns"`
	MinConns         int    `mapstructure:"min_conns"`
	ConnLifetimeMins int    `mapstructure:"conn_lifetime_minutes"`
}

// ScanConfig governs the scan pipeline and job lifecycle.
type ScanConfig struct {
	Workers            int `mapstructure:"workers"`
	FetchTimeoutSec    int `mapstructure:"fetch_timeout_seconds"`
	AnalyzeTimeoutSec  int `mapstructure:"analyze_timeout_seconds"`
	GenerateTimeoutSec int `mapstructure:"generate_timeout_seconds"`
	TopKeyphrases      int `mapstructure:"top_keyphrases"`
	JobTTLHours        int `mapstructure:"job_ttl_hours"`
	ReapIntervalMins   int `mapstructure:"reap_interval_minutes"`
	StuckAfterMins     int `mapstructure:"stuck_after_minutes"`
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	UserAgent   string `mapstructure:"user_agent"`
	MaxBodySize int    `mapstructure:"max_body_size"`
}

// PageSpeedConfig configures the PageSpeed Insights client. An empty
// API key disables the integration.
type PageSpeedConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// RecommendConfig configures the remote recommendation writer. An empty
// endpoint selects the static recommender.
type RecommendConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ArchiveConfig selects where fetched page snapshots are kept.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"` // "noop", "local" or "gcs"
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// RulesConfig points at an optional rule table override on disk.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// PremiumConfig lists tokens that unlock the full report.
type PremiumConfig struct {
	Tokens []string `mapstructure:"tokens"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AEOSCAN")
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
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.depth", 128)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.fetch_timeout_seconds", 20)
	v.SetDefault("scan.analyze_timeout_seconds", 30)
	v.SetDefault("scan.generate_timeout_seconds", 30)
	v.SetDefault("scan.top_keyphrases", 8)
	v.SetDefault("scan.job_ttl_hours", 24)
	v.SetDefault("scan.reap_interval_minutes", 5)
	v.SetDefault("scan.stuck_after_minutes", 10)
	v.SetDefault("fetch.user_agent", "aeoscan-bot/0.1")
	v.SetDefault("fetch.max_body_size", 5*1024*1024)
	v.SetDefault("pagespeed.timeout_seconds", 25)
	v.SetDefault("pagespeed.max_retries", 2)
	v.SetDefault("recommend.model", "gpt-4o-mini")
	v.SetDefault("recommend.timeout_seconds", 20)
	v.SetDefault("archive.backend", "noop")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be > 0")
	}
	if c.Scan.FetchTimeoutSec <= 0 {
		return fmt.Errorf("scan.fetch_timeout_seconds must be > 0")
	}
	if c.Scan.JobTTLHours <= 0 {
		return fmt.Errorf("scan.job_ttl_hours must be > 0")
	}
	switch c.Queue.Backend {
	case "memory":
		if c.Queue.Depth <= 0 {
			return fmt.Errorf("queue.depth must be > 0 for the memory backend")
		}
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.TopicID == "" || c.Queue.SubscriptionID == "" {
			return fmt.Errorf("queue.project_id, queue.topic_id and queue.subscription_id must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("queue.backend must be memory or pubsub, got %q", c.Queue.Backend)
	}
	switch c.Archive.Backend {
	case "noop":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be noop, local or gcs, got %q", c.Archive.Backend)
	}
	return nil
}

// FetchTimeout returns the per-fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scan.FetchTimeoutSec) * time.Second
}

// JobTTL returns how long finished jobs are retained.
func (c Config) JobTTL() time.Duration {
	return time.Duration(c.Scan.JobTTLHours) * time.Hour
}
