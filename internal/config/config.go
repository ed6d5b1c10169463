// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/articlescraper/internal/scrape"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPER_SCRAPE_WORKERS.
const EnvPrefix = "SCRAPER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Extract ExtractConfig `mapstructure:"extract"`
	Output  OutputConfig  `mapstructure:"output"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ScrapeConfig governs dispatch and input preparation.
type ScrapeConfig struct {
	Workers int  `mapstructure:"workers"`
	Shuffle bool `mapstructure:"shuffle"`
	// Seed fixes the shuffle order; 0 means random.
	Seed   uint64 `mapstructure:"seed"`
	Dedupe bool   `mapstructure:"dedupe"`
}

// HTTPConfig configures fetching, retry and politeness.
type HTTPConfig struct {
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	MaxRetries         int     `mapstructure:"max_retries"`
	BackoffInitialMs   int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs       int     `mapstructure:"backoff_max_ms"`
	UserAgent          string  `mapstructure:"user_agent"`
	RespectRobots      bool    `mapstructure:"respect_robots"`
	RateLimitPerDomain float64 `mapstructure:"rate_limit_per_domain"`
	MaxBodyBytes       int     `mapstructure:"max_body_bytes"`
}

// ExtractConfig tunes article extraction.
type ExtractConfig struct {
	MinTextLength int `mapstructure:"min_text_length"`
}

// OutputConfig selects where results are written.
type OutputConfig struct {
	// Path overrides the derived <input>_output.xlsx location.
	Path string `mapstructure:"path"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from defaults, an optional file at path, SCRAPER_*
// environment variables and the given flags, in increasing precedence.
// flags maps config keys to command-line flags; nil entries are ignored.
func Load(path string, flags map[string]*pflag.Flag) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

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
	v.SetDefault("scrape.workers", 4)
	v.SetDefault("scrape.shuffle", true)
	v.SetDefault("scrape.seed", 0)
	v.SetDefault("scrape.dedupe", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.user_agent", "articlescraper/1.0 (+https://github.com/JakeFAU/articlescraper)")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.rate_limit_per_domain", 0)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("extract.min_text_length", 1)
	v.SetDefault("output.path", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scrape.Workers <= 0 {
		return fmt.Errorf("%w: scrape.workers must be > 0, got %d", scrape.ErrInvalidConfig, c.Scrape.Workers)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: http.timeout_seconds must be > 0", scrape.ErrInvalidConfig)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("%w: http.max_retries must be >= 0", scrape.ErrInvalidConfig)
	}
	if c.HTTP.BackoffInitialMs <= 0 {
		return fmt.Errorf("%w: http.backoff_initial_ms must be > 0", scrape.ErrInvalidConfig)
	}
	if c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("%w: http.backoff_max_ms must be >= http.backoff_initial_ms", scrape.ErrInvalidConfig)
	}
	if c.HTTP.RateLimitPerDomain < 0 {
		return fmt.Errorf("%w: http.rate_limit_per_domain must be >= 0", scrape.ErrInvalidConfig)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: http.max_body_bytes must be > 0", scrape.ErrInvalidConfig)
	}
	if c.Extract.MinTextLength < 0 {
		return fmt.Errorf("%w: extract.min_text_length must be >= 0", scrape.ErrInvalidConfig)
	}
	return nil
}

// Timeout is the per-request HTTP timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
