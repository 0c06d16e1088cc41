package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxItemsPerFile is the chunk flush threshold
	DefaultMaxItemsPerFile = 2048
	// DefaultCatalogPath is where the run catalog lives unless overridden
	DefaultCatalogPath = "~/.shardex/catalog.db"
	// DefaultIndexFile is the index name used when none is given
	DefaultIndexFile = "index.jsonl"
)

// Config holds all shardex configuration
type Config struct {
	Shard   ShardConfig   `yaml:"shard"`
	Catalog CatalogConfig `yaml:"catalog"`
	Publish PublishConfig `yaml:"publish"`
	Logging LoggingConfig `yaml:"logging"`
}

// ShardConfig configures a sharding run
type ShardConfig struct {
	Inputs          []string `yaml:"inputs"`
	OutputDir       string   `yaml:"output_dir"`
	IndexFile       string   `yaml:"index_file"`
	MaxItemsPerFile int      `yaml:"max_items_per_file"`
	Workers         int      `yaml:"workers"`
	Parallelism     int      `yaml:"parallelism"` // 0 means Workers
	Tokenizer       string   `yaml:"tokenizer"`   // "", whitespace, gpt2, pile, or a gpt_bpe vocab id
	EOT             string   `yaml:"eot"`         // record boundary token
}

// CatalogConfig locates the SQLite run catalog
type CatalogConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// PublishConfig configures uploads to an S3-compatible bucket. Publishing
// is off unless both Endpoint and Bucket are set.
type PublishConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// Enabled reports whether enough is configured to publish
func (p PublishConfig) Enabled() bool {
	return p.Endpoint != "" && p.Bucket != ""
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Shard: ShardConfig{
			OutputDir:       ".",
			IndexFile:       DefaultIndexFile,
			MaxItemsPerFile: DefaultMaxItemsPerFile,
			Workers:         runtime.NumCPU(),
			EOT:             "<|endoftext|>",
		},
		Catalog: CatalogConfig{
			Path: DefaultCatalogPath,
		},
		Publish: PublishConfig{
			Secure: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies SHARDEX_* environment variables
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SHARDEX_OUTPUT_DIR"); v != "" {
		c.Shard.OutputDir = v
	}
	if v := os.Getenv("SHARDEX_INDEX_FILE"); v != "" {
		c.Shard.IndexFile = v
	}
	if v := os.Getenv("SHARDEX_TOKENIZER"); v != "" {
		c.Shard.Tokenizer = v
	}
	if v := os.Getenv("SHARDEX_EOT"); v != "" {
		c.Shard.EOT = v
	}
	if err := envInt("SHARDEX_MAX_ITEMS", &c.Shard.MaxItemsPerFile); err != nil {
		return err
	}
	if err := envInt("SHARDEX_WORKERS", &c.Shard.Workers); err != nil {
		return err
	}
	if err := envInt("SHARDEX_PARALLELISM", &c.Shard.Parallelism); err != nil {
		return err
	}

	if v := os.Getenv("SHARDEX_CATALOG"); v != "" {
		c.Catalog.Path = v
	}

	if v := os.Getenv("SHARDEX_PUBLISH_ENDPOINT"); v != "" {
		c.Publish.Endpoint = v
	}
	if v := os.Getenv("SHARDEX_PUBLISH_BUCKET"); v != "" {
		c.Publish.Bucket = v
	}
	if v := os.Getenv("SHARDEX_PUBLISH_PREFIX"); v != "" {
		c.Publish.Prefix = v
	}
	if v := os.Getenv("SHARDEX_PUBLISH_ACCESS_KEY"); v != "" {
		c.Publish.AccessKey = v
	}
	if v := os.Getenv("SHARDEX_PUBLISH_SECRET_KEY"); v != "" {
		c.Publish.SecretKey = v
	}

	if v := os.Getenv("SHARDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

// ValidLogLevels lists the accepted logging levels
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for values a run cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Shard.MaxItemsPerFile <= 0 {
		errs = append(errs, fmt.Errorf("max_items_per_file must be positive, got %d", c.Shard.MaxItemsPerFile))
	}
	if c.Shard.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Shard.Workers))
	}
	if c.Shard.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("parallelism must not be negative, got %d", c.Shard.Parallelism))
	}
	if c.Shard.IndexFile == "" {
		errs = append(errs, errors.New("index_file is required"))
	}
	if c.Shard.EOT == "" {
		errs = append(errs, errors.New("eot is required"))
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels))
	}

	if (c.Publish.Endpoint == "") != (c.Publish.Bucket == "") {
		errs = append(errs, errors.New("publish requires both endpoint and bucket"))
	}
	return errors.Join(errs...)
}

// IndexPath returns the index file path. A relative index file is placed
// in the output directory.
func (c *Config) IndexPath() string {
	if filepath.IsAbs(c.Shard.IndexFile) {
		return c.Shard.IndexFile
	}
	return filepath.Join(c.Shard.OutputDir, c.Shard.IndexFile)
}

// CatalogPath returns the catalog path with a leading ~ expanded
func (c *Config) CatalogPath() (string, error) {
	return ExpandHome(c.Catalog.Path)
}

// ExpandHome expands a leading "~/" to the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
