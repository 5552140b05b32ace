package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the file looked up under the XDG config directories
const DefaultConfigName = "image-weaver/config.yaml"

// ListingConfig holds the selectors used to split the listing page into articles
type ListingConfig struct {
	Headline string `yaml:"headline"`
	Title    string `yaml:"title"`
	Link     string `yaml:"link"`
}

// RegionConfig holds the markers delimiting the image region of an article body
type RegionConfig struct {
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	ImageSource string `yaml:"image_source"`
}

// Config holds all runtime configuration parameters
type Config struct {
	BaseURL            string        `yaml:"base_url"`
	ArticleLimit       *int          `yaml:"article_limit"`
	ConcurrentWorkers  int           `yaml:"concurrent_workers"`
	OutputDir          string        `yaml:"output_dir"`
	RequestTimeoutMs   int           `yaml:"request_timeout_ms"`
	UserAgent          string        `yaml:"user_agent"`
	Listing            ListingConfig `yaml:"listing"`
	Region             RegionConfig  `yaml:"region"`
	DBPath             string        `yaml:"db_path"`
	MetricsPath        string        `yaml:"metrics_path"`
	ProgressIntervalMs int           `yaml:"progress_interval_ms"`
}

// Default returns a configuration with every optional field populated
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// LoadConfig reads configuration from a YAML file and applies defaults.
// Validation is left to the caller since required fields usually arrive as CLI arguments.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// FindConfig returns the path of the user's config file under the XDG config
// directories, or "" if there is none
func FindConfig() string {
	path, err := xdg.SearchConfigFile(DefaultConfigName)
	if err != nil {
		return ""
	}
	return path
}

// Limit returns the configured article limit
func (c *Config) Limit() int {
	if c.ArticleLimit == nil {
		return 25
	}
	return *c.ArticleLimit
}

// SetLimit overrides the article limit
func (c *Config) SetLimit(n int) {
	c.ArticleLimit = &n
}

// RequestTimeout returns the per-request timeout as a duration
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// ProgressInterval returns how often progress is logged
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://habr.com"
	}
	if cfg.ArticleLimit == nil {
		cfg.SetLimit(25)
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 10000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "image-weaver/1.0"
	}
	if cfg.Listing.Headline == "" {
		cfg.Listing.Headline = "h2"
	}
	if cfg.Listing.Title == "" {
		cfg.Listing.Title = "span"
	}
	if cfg.Listing.Link == "" {
		cfg.Listing.Link = "a[href]"
	}
	if cfg.Region.Start == "" {
		cfg.Region.Start = `<div id="post-content-body">`
	}
	if cfg.Region.End == "" {
		cfg.Region.End = "</div>"
	}
	if cfg.Region.ImageSource == "" {
		cfg.Region.ImageSource = `<img src="`
	}
	if cfg.ProgressIntervalMs == 0 {
		cfg.ProgressIntervalMs = 10000
	}
}

// Validate checks that required fields are present and values are sensible
func (c *Config) Validate() error {
	if c.ConcurrentWorkers < 1 {
		return errors.New("concurrent_workers must be >= 1")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if c.Limit() < 0 {
		return errors.New("article_limit must be >= 0")
	}
	if c.RequestTimeoutMs < 100 {
		return errors.New("request_timeout_ms must be >= 100")
	}
	if c.ProgressIntervalMs < 0 {
		return errors.New("progress_interval_ms must be >= 0")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}

	if c.Region.Start == "" || c.Region.End == "" || c.Region.ImageSource == "" {
		return errors.New("region markers must not be empty")
	}
	return nil
}
