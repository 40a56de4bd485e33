package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Blob     BlobConfig     `yaml:"blob"`
	Rabbit   RabbitConfig   `yaml:"rabbit"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig points at the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BlobConfig selects where image files are stored.
type BlobConfig struct {
	Backend  string `yaml:"backend"` // "fs" or "s3"
	Dir      string `yaml:"dir"`
	S3Region string `yaml:"s3_region"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
}

// RabbitConfig enables item event publishing when URL is set.
type RabbitConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// SweepConfig controls the orphaned blob sweep.
type SweepConfig struct {
	Schedule string        `yaml:"schedule"`
	Grace    time.Duration `yaml:"grace"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Blob backends.
const (
	BlobBackendFS = "fs"
	BlobBackendS3 = "s3"
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "porabnik.sqlite3"},
		Blob:     BlobConfig{Backend: BlobBackendFS, Dir: "images", S3Region: "eu-central-1"},
		Rabbit:   RabbitConfig{Exchange: "porabnik.items"},
		Sweep:    SweepConfig{Schedule: "30 3 * * *", Grace: time.Hour},
		Log:      LogConfig{Level: "info"},
	}
}

// Load builds the configuration in layers: defaults, then the YAML file at
// yamlPath (if non-empty), then environment variables, optionally read from
// envFile first. A missing envFile is not an error.
func Load(yamlPath, envFile string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	} else {
		// A missing .env is fine when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "PORABNIK_ADDR")
	setString(&c.Database.Path, "PORABNIK_DB")
	setString(&c.Blob.Backend, "PORABNIK_BLOB_BACKEND")
	setString(&c.Blob.Dir, "PORABNIK_BLOB_DIR")
	setString(&c.Blob.S3Region, "PORABNIK_S3_REGION")
	setString(&c.Blob.S3Bucket, "PORABNIK_S3_BUCKET")
	setString(&c.Blob.S3Prefix, "PORABNIK_S3_PREFIX")
	setString(&c.Rabbit.URL, "PORABNIK_RABBIT_URL")
	setString(&c.Rabbit.Exchange, "PORABNIK_RABBIT_EXCHANGE")
	setString(&c.Sweep.Schedule, "PORABNIK_SWEEP_SCHEDULE")
	setString(&c.Log.Level, "PORABNIK_LOG_LEVEL")
	setString(&c.Log.File, "PORABNIK_LOG_FILE")

	if v := os.Getenv("PORABNIK_SWEEP_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORABNIK_SWEEP_GRACE: %w", err)
		}
		c.Sweep.Grace = d
	}
	return nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Addr == "" {
		return errors.New("PORABNIK_ADDR must not be empty")
	}
	if c.Database.Path == "" {
		return errors.New("PORABNIK_DB must not be empty")
	}

	switch c.Blob.Backend {
	case BlobBackendFS:
		if c.Blob.Dir == "" {
			return errors.New("PORABNIK_BLOB_DIR must be provided for the fs backend")
		}
	case BlobBackendS3:
		if c.Blob.S3Bucket == "" {
			return errors.New("PORABNIK_S3_BUCKET must be provided for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown blob backend %q (want fs or s3)", c.Blob.Backend)
	}

	if c.Rabbit.URL != "" && c.Rabbit.Exchange == "" {
		return errors.New("PORABNIK_RABBIT_EXCHANGE must be provided when PORABNIK_RABBIT_URL is set")
	}

	if c.Sweep.Grace < 0 {
		return errors.New("PORABNIK_SWEEP_GRACE must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
