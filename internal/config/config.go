// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent is a Chrome 120 desktop identity.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// HTTPConfig configures the fetcher transport, retries and pacing.
type HTTPConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	Proxy            string  `mapstructure:"proxy"`
	RetryCount       int     `mapstructure:"retry_count"`
	ThrottleMs       int     `mapstructure:"throttle_ms"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	MaxRPS           float64 `mapstructure:"max_rps"`
	RetryStatuses    []int   `mapstructure:"retry_statuses"`
}

// Timeout returns the per-request timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// Throttle returns the fixed pause before each request.
func (h HTTPConfig) Throttle() time.Duration {
	return time.Duration(h.ThrottleMs) * time.Millisecond
}

// BackoffInitial returns the base retry delay.
func (h HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(h.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (h HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(h.BackoffMaxMs) * time.Millisecond
}

// HarvestConfig governs the orchestrator.
type HarvestConfig struct {
	Concurrency     int      `mapstructure:"concurrency"`
	OutputDir       string   `mapstructure:"output_dir"`
	OutputLineLimit int      `mapstructure:"output_line_limit"`
	BatchSize       int      `mapstructure:"batch_size"`
	Sources         []string `mapstructure:"sources"`
}

// SiteConfig points an adapter at its archive.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	StartYear int    `mapstructure:"start_year"`
}

// SourcesConfig holds per-archive settings.
type SourcesConfig struct {
	HeavyAthlete   SiteConfig `mapstructure:"heavyathlete"`
	ScottishScores SiteConfig `mapstructure:"scottishscores"`
	NASGA          SiteConfig `mapstructure:"nasga"`
}

// CheckpointConfig selects and configures the checkpoint backend.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
	Name    string `mapstructure:"name"`
}

// UploadConfig selects where finished output files are shipped.
type UploadConfig struct {
	Provider string        `mapstructure:"provider"`
	S3       S3Config      `mapstructure:"s3"`
	GCS      GCSConfig     `mapstructure:"gcs"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// GCSConfig addresses a Cloud Storage bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// WebhookConfig addresses an HTTP endpoint accepting multipart uploads.
type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NotifyConfig holds run-summary notification targets.
type NotifyConfig struct {
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig names the topic for run summaries. An empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the status server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional file plus HARVEST_* environment
// variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
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
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.retry_count", 3)
	v.SetDefault("http.throttle_ms", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("http.max_rps", 0)
	v.SetDefault("http.retry_statuses", []int{429, 500, 502, 503, 504})

	v.SetDefault("harvest.concurrency", 5)
	v.SetDefault("harvest.output_dir", "output")
	v.SetDefault("harvest.output_line_limit", 0)
	v.SetDefault("harvest.batch_size", 50)
	v.SetDefault("harvest.sources", []string{"heavyathlete"})

	v.SetDefault("sources.heavyathlete.base_url", "https://heavyathlete.com")
	v.SetDefault("sources.heavyathlete.start_year", 1999)
	v.SetDefault("sources.scottishscores.base_url", "https://scottishscores.com")
	v.SetDefault("sources.scottishscores.start_year", 1990)
	v.SetDefault("sources.nasga.base_url", "http://www.nasgaweb.com")

	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.path", "checkpoint.json")
	v.SetDefault("checkpoint.dsn", "")
	v.SetDefault("checkpoint.table", "harvest_checkpoints")
	v.SetDefault("checkpoint.name", "default")

	v.SetDefault("upload.provider", "none")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.region", "us-east-1")
	v.SetDefault("upload.s3.endpoint", "s3.amazonaws.com")
	v.SetDefault("upload.s3.access_key", "")
	v.SetDefault("upload.s3.secret_key", "")
	v.SetDefault("upload.s3.use_ssl", true)
	v.SetDefault("upload.s3.prefix", "")
	v.SetDefault("upload.gcs.bucket", "")
	v.SetDefault("upload.gcs.prefix", "")
	v.SetDefault("upload.webhook.url", "")
	v.SetDefault("upload.webhook.timeout_seconds", 60)

	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. knownSources lists
// the adapter names harvest.sources may reference; nil skips that check.
func (c Config) Validate(knownSources ...string) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Harvest.Concurrency <= 0 {
		fail("harvest.concurrency must be > 0")
	}
	if c.HTTP.RetryCount < 0 {
		fail("http.retry_count must be >= 0")
	}
	if c.HTTP.ThrottleMs < 0 {
		fail("http.throttle_ms must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		fail("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRPS < 0 {
		fail("http.max_rps must be >= 0")
	}
	if l := c.Harvest.OutputLineLimit; l < 0 || (l > 0 && l < 3) {
		fail("harvest.output_line_limit must be 0 or >= 3, got %d", l)
	}
	if c.Harvest.BatchSize <= 0 {
		fail("harvest.batch_size must be > 0")
	}
	if len(c.Harvest.Sources) == 0 {
		fail("harvest.sources must name at least one source")
	}
	if len(knownSources) > 0 {
		for _, name := range c.Harvest.Sources {
			if !slices.Contains(knownSources, name) {
				fail("unknown source %q", name)
			}
		}
	}

	switch c.Checkpoint.Backend {
	case "file":
		if c.Checkpoint.Path == "" {
			fail("checkpoint.path must be set for the file backend")
		}
	case "postgres":
		if c.Checkpoint.DSN == "" {
			fail("checkpoint.dsn must be set for the postgres backend")
		}
	default:
		fail("unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}

	switch c.Upload.Provider {
	case "", "none":
	case "s3":
		if c.Upload.S3.Bucket == "" {
			fail("upload.s3.bucket must be set")
		}
	case "gcs":
		if c.Upload.GCS.Bucket == "" {
			fail("upload.gcs.bucket must be set")
		}
	case "webhook":
		if c.Upload.Webhook.URL == "" {
			fail("upload.webhook.url must be set")
		}
	default:
		fail("unknown upload.provider %q", c.Upload.Provider)
	}

	if c.Notify.PubSub.Topic != "" && c.Notify.PubSub.ProjectID == "" {
		fail("notify.pubsub.project_id must be set when a topic is configured")
	}

	return errors.Join(errs...)
}
