package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Cseflow CseflowConfig `yaml:"cseflow"`
	Polling PollingConfig `yaml:"polling"`
	Market  MarketConfig  `yaml:"market"`
	Refresh RefreshConfig `yaml:"refresh"`
	Source  SourceConfig  `yaml:"source"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type CseflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type PollingConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ClosedInterval time.Duration `yaml:"closed_interval"`
	RequestDelay   time.Duration `yaml:"request_delay"`
}

// MarketConfig describes the trading window in Sri Lanka Standard Time
// (UTC+5:30). The close carries a few minutes of buffer past the official
// 14:30 close to capture post-close prints.
type MarketConfig struct {
	OpenHour    int `yaml:"open_hour"`
	OpenMinute  int `yaml:"open_minute"`
	CloseHour   int `yaml:"close_hour"`
	CloseMinute int `yaml:"close_minute"`
}

// RefreshConfig describes the daily symbol reference rebuild window.
type RefreshConfig struct {
	Hour   int           `yaml:"hour"`
	Minute int           `yaml:"minute"`
	Window time.Duration `yaml:"window"`
}

type SourceConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Endpoints []string      `yaml:"endpoints"`
}

type StorageConfig struct {
	DataDir      string        `yaml:"data_dir"`
	ReferenceDir string        `yaml:"reference_dir"`
	LegacyCSV    bool          `yaml:"legacy_csv"`
	Archive      ArchiveConfig `yaml:"archive"`
	S3           S3Config      `yaml:"s3"`
}

type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// DefaultEndpoints lists the stable, publicly accessible CSE API endpoints
// polled each cycle, in fetch order. Endpoints that require hidden
// session-generated parameters (chartData, detailedTrades, ...) are
// deliberately excluded; they fail outside a browser session.
var DefaultEndpoints = []string{
	"marketStatus",
	"marketSummery",
	"todaySharePrice",
	"tradeSummary",
	"aspiData",
	"snpData",
	"topGainers",
	"topLooses", // CSE's spelling
	"allSectors",
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(config)

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// defaultConfig carries the operational defaults of the pipeline: one-minute
// polling with a 400ms courtesy delay between company-info requests, CSE
// trading hours 09:00-14:35 SLST, and a reference refresh shortly after open.
func defaultConfig() *Config {
	return &Config{
		Polling: PollingConfig{
			Interval:       60 * time.Second,
			RetryDelay:     60 * time.Second,
			ClosedInterval: 15 * time.Minute,
			RequestDelay:   400 * time.Millisecond,
		},
		Market: MarketConfig{
			OpenHour:    9,
			OpenMinute:  0,
			CloseHour:   14,
			CloseMinute: 35,
		},
		Refresh: RefreshConfig{
			Hour:   9,
			Minute: 5,
			Window: 10 * time.Minute,
		},
		Source: SourceConfig{
			BaseURL: "https://www.cse.lk",
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:      "data",
			ReferenceDir: "reference",
		},
	}
}

// applyDefaults fills fields the YAML left at their zero value. Durations and
// the endpoint list have sensible defaults; booleans stay as given.
func applyDefaults(cfg *Config) {
	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = 60 * time.Second
	}
	if cfg.Polling.RetryDelay <= 0 {
		cfg.Polling.RetryDelay = 60 * time.Second
	}
	if cfg.Polling.ClosedInterval <= 0 {
		cfg.Polling.ClosedInterval = 15 * time.Minute
	}
	if cfg.Polling.RequestDelay <= 0 {
		cfg.Polling.RequestDelay = 400 * time.Millisecond
	}
	if cfg.Refresh.Window <= 0 {
		cfg.Refresh.Window = 10 * time.Minute
	}
	if cfg.Source.BaseURL == "" {
		cfg.Source.BaseURL = "https://www.cse.lk"
	}
	if cfg.Source.Timeout <= 0 {
		cfg.Source.Timeout = 10 * time.Second
	}
	if len(cfg.Source.Endpoints) == 0 {
		cfg.Source.Endpoints = append([]string(nil), DefaultEndpoints...)
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.ReferenceDir == "" {
		cfg.Storage.ReferenceDir = "reference"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "CSEFlow"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Cseflow.Name == "" {
		return fmt.Errorf("cseflow.name is required")
	}

	if cfg.Cseflow.Version == "" {
		return fmt.Errorf("cseflow.version is required")
	}

	if cfg.Market.OpenHour < 0 || cfg.Market.OpenHour > 23 {
		return fmt.Errorf("market.open_hour must be between 0 and 23")
	}
	if cfg.Market.CloseHour < 0 || cfg.Market.CloseHour > 23 {
		return fmt.Errorf("market.close_hour must be between 0 and 23")
	}
	if cfg.Market.OpenMinute < 0 || cfg.Market.OpenMinute > 59 {
		return fmt.Errorf("market.open_minute must be between 0 and 59")
	}
	if cfg.Market.CloseMinute < 0 || cfg.Market.CloseMinute > 59 {
		return fmt.Errorf("market.close_minute must be between 0 and 59")
	}

	openAt := cfg.Market.OpenHour*60 + cfg.Market.OpenMinute
	closeAt := cfg.Market.CloseHour*60 + cfg.Market.CloseMinute
	if openAt >= closeAt {
		return fmt.Errorf("market window: open %02d:%02d must be before close %02d:%02d",
			cfg.Market.OpenHour, cfg.Market.OpenMinute, cfg.Market.CloseHour, cfg.Market.CloseMinute)
	}

	if cfg.Refresh.Hour < 0 || cfg.Refresh.Hour > 23 || cfg.Refresh.Minute < 0 || cfg.Refresh.Minute > 59 {
		return fmt.Errorf("refresh.hour/refresh.minute out of range")
	}

	for _, ep := range cfg.Source.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("source.endpoints contains an empty endpoint name")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
