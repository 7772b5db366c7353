package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"skusync/internal/retry"
	"skusync/internal/storage"
	"skusync/internal/worker"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted when credentials are not configured
const (
	EnvAccessKey = "SKUSYNC_ACCESS_KEY"
	EnvSecretKey = "SKUSYNC_SECRET_KEY"
)

// Config represents the application configuration
type Config struct {
	Storage     StorageConfig `yaml:"storage"`
	Sync        SyncConfig    `yaml:"sync"`
	Input       InputConfig   `yaml:"input"`
	Report      ReportConfig  `yaml:"report"`
	MetricsAddr string        `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	LogLevel    string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string        `yaml:"log_format" validate:"oneof=json console"`
}

// StorageConfig selects and configures the object store backend
type StorageConfig struct {
	Driver    string `yaml:"driver" validate:"oneof=minio s3 blob"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region"`
	URL       string `yaml:"url"`
}

// SyncConfig represents sync engine configuration
type SyncConfig struct {
	Bucket            string        `yaml:"bucket" validate:"required"`
	LocalRoot         string        `yaml:"local_root" validate:"required"`
	Prefix            string        `yaml:"prefix"`
	Extensions        []string      `yaml:"extensions" validate:"min=1,dive,required"`
	Concurrency       int           `yaml:"concurrency" validate:"min=1"`
	Retries           int           `yaml:"retries" validate:"min=1"`
	RetryBackoffMs    int           `yaml:"retry_backoff_ms" validate:"min=0"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" validate:"gte=1"`
	MaxBackoffMs      int           `yaml:"max_backoff_ms" validate:"min=0"`
	Jitter            bool          `yaml:"jitter"`
	CallTimeout       time.Duration `yaml:"call_timeout" validate:"min=0"`
	DryRun            bool          `yaml:"dry_run"`
	SkipExisting      bool          `yaml:"skip_existing"`
	ShowProgress      bool          `yaml:"show_progress"`
}

// InputConfig locates the identifier list
type InputConfig struct {
	File   string `yaml:"file"`
	Column string `yaml:"column" validate:"required"`
	Sheet  string `yaml:"sheet"`
}

// ReportConfig names the optional report artifacts
type ReportConfig struct {
	File         string `yaml:"file"`
	NotFoundFile string `yaml:"not_found_file"`
	FailedFile   string `yaml:"failed_file"`
	HistoryDB    string `yaml:"history_db"`
}

// Default returns the configuration used before any file or flag is applied
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Storage: StorageConfig{
			Driver: storage.DriverMinIO,
			Secure: true,
		},
		Sync: SyncConfig{
			Extensions:        []string{".pdf"},
			Concurrency:       8,
			Retries:           3,
			RetryBackoffMs:    500,
			BackoffMultiplier: 2,
			MaxBackoffMs:      30000,
			Jitter:            true,
			CallTimeout:       60 * time.Second,
			SkipExisting:      true,
			ShowProgress:      true,
		},
		Input: InputConfig{
			Column: "SKU",
		},
	}
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	loadFromEnv(cfg)
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Lookup(name) != nil && flags.Changed(name) {
			err = apply()
		}
	}
	str := func(dst *string, name string) func() error {
		return func() (e error) { *dst, e = flags.GetString(name); return }
	}
	boolean := func(dst *bool, name string) func() error {
		return func() (e error) { *dst, e = flags.GetBool(name); return }
	}
	integer := func(dst *int, name string) func() error {
		return func() (e error) { *dst, e = flags.GetInt(name); return }
	}

	set("driver", str(&cfg.Storage.Driver, "driver"))
	set("endpoint", str(&cfg.Storage.Endpoint, "endpoint"))
	set("access-key", str(&cfg.Storage.AccessKey, "access-key"))
	set("secret-key", str(&cfg.Storage.SecretKey, "secret-key"))
	set("secure", boolean(&cfg.Storage.Secure, "secure"))
	set("region", str(&cfg.Storage.Region, "region"))
	set("bucket-url", str(&cfg.Storage.URL, "bucket-url"))

	set("bucket", str(&cfg.Sync.Bucket, "bucket"))
	set("local-root", str(&cfg.Sync.LocalRoot, "local-root"))
	set("prefix", str(&cfg.Sync.Prefix, "prefix"))
	set("ext", func() (e error) { cfg.Sync.Extensions, e = flags.GetStringSlice("ext"); return })
	set("concurrency", integer(&cfg.Sync.Concurrency, "concurrency"))
	set("retries", integer(&cfg.Sync.Retries, "retries"))
	set("retry-backoff-ms", integer(&cfg.Sync.RetryBackoffMs, "retry-backoff-ms"))
	set("backoff-multiplier", func() (e error) { cfg.Sync.BackoffMultiplier, e = flags.GetFloat64("backoff-multiplier"); return })
	set("max-backoff-ms", integer(&cfg.Sync.MaxBackoffMs, "max-backoff-ms"))
	set("call-timeout", func() (e error) { cfg.Sync.CallTimeout, e = flags.GetDuration("call-timeout"); return })
	set("dry-run", boolean(&cfg.Sync.DryRun, "dry-run"))
	set("skip-existing", boolean(&cfg.Sync.SkipExisting, "skip-existing"))
	set("show-progress", boolean(&cfg.Sync.ShowProgress, "show-progress"))

	set("input", str(&cfg.Input.File, "input"))
	set("column", str(&cfg.Input.Column, "column"))
	set("sheet", str(&cfg.Input.Sheet, "sheet"))

	set("report", str(&cfg.Report.File, "report"))
	set("not-found-file", str(&cfg.Report.NotFoundFile, "not-found-file"))
	set("failed-file", str(&cfg.Report.FailedFile, "failed-file"))
	set("history-db", str(&cfg.Report.HistoryDB, "history-db"))

	set("metrics-addr", str(&cfg.MetricsAddr, "metrics-addr"))
	set("log-level", str(&cfg.LogLevel, "log-level"))
	set("log-format", str(&cfg.LogFormat, "log-format"))

	return err
}

// loadFromEnv fills credentials that neither the file nor the flags set
func loadFromEnv(cfg *Config) {
	if cfg.Storage.AccessKey == "" {
		cfg.Storage.AccessKey = os.Getenv(EnvAccessKey)
	}
	if cfg.Storage.SecretKey == "" {
		cfg.Storage.SecretKey = os.Getenv(EnvSecretKey)
	}
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = storage.DriverMinIO
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)

	exts := c.Sync.Extensions[:0]
	for _, ext := range c.Sync.Extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.Sync.Extensions = exts
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case storage.DriverMinIO:
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the minio driver")
		}
		if c.Storage.AccessKey == "" {
			return fmt.Errorf("access key is required for the minio driver")
		}
		if c.Storage.SecretKey == "" {
			return fmt.Errorf("secret key is required for the minio driver")
		}
	case storage.DriverS3:
		if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
			return fmt.Errorf("access key and secret key must be set together")
		}
	}

	return nil
}

// StorageConfig maps the storage section onto the client configuration
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:    c.Storage.Driver,
		Endpoint:  c.Storage.Endpoint,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
		Secure:    c.Storage.Secure,
		Region:    c.Storage.Region,
		URL:       c.Storage.URL,
	}
}

// RetryPolicy builds the retry policy shared by every storage call
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Sync.Retries,
		BaseDelay:   time.Duration(c.Sync.RetryBackoffMs) * time.Millisecond,
		Multiplier:  c.Sync.BackoffMultiplier,
		MaxDelay:    time.Duration(c.Sync.MaxBackoffMs) * time.Millisecond,
		Jitter:      c.Sync.Jitter,
	}
}

// WorkerConfig builds the immutable per-run worker configuration
func (c *Config) WorkerConfig() worker.Config {
	exts := make([]string, len(c.Sync.Extensions))
	copy(exts, c.Sync.Extensions)

	return worker.Config{
		Bucket:       c.Sync.Bucket,
		Prefix:       c.Sync.Prefix,
		LocalRoot:    c.Sync.LocalRoot,
		Extensions:   exts,
		CallTimeout:  c.Sync.CallTimeout,
		Retry:        c.RetryPolicy(),
		DryRun:       c.Sync.DryRun,
		SkipExisting: c.Sync.SkipExisting,
	}
}
