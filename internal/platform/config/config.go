// Package config loads dzinza settings from an optional YAML file followed by
// DZINZA_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Lock    LockConfig    `yaml:"lock"`
	Blob    BlobConfig    `yaml:"blob"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Logging LoggingConfig `yaml:"logging"`
	Core    CoreConfig    `yaml:"core"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LockConfig selects the tree lock implementation. An empty RedisURL keeps
// locks in process.
type LockConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// BlobConfig selects where tree exports are written.
type BlobConfig struct {
	Driver      string `yaml:"driver"` // fs|memory|s3
	FSRoot      string `yaml:"fs_root"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// JobsConfig holds cron schedules. An empty schedule disables the job.
type JobsConfig struct {
	ReconcileSchedule string `yaml:"reconcile_schedule"`
	ExportSchedule    string `yaml:"export_schedule"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text, console
}

// CoreConfig tunes the coordinator.
type CoreConfig struct {
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth:    AuthConfig{JWTSigningKey: "dev-secret-key-change-in-production", Issuer: "dzinza"},
		Storage: StorageConfig{Driver: "sqlite", SQLitePath: "dzinza.db"},
		Lock:    LockConfig{TTL: 30 * time.Second},
		Blob:    BlobConfig{Driver: "fs", FSRoot: "exports"},
		Jobs:    JobsConfig{ReconcileSchedule: "@hourly"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Core: CoreConfig{
			RetryAttempts:    3,
			RetryBackoff:     50 * time.Millisecond,
			OperationTimeout: 10 * time.Second,
		},
	}
}

// Load reads the YAML file at path (skipped when empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by DZINZA_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(os.Getenv("DZINZA_CONFIG"))
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("DZINZA_ADDR", &cfg.Server.Addr)
	dur("DZINZA_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	str("DZINZA_JWT_SIGNING_KEY", &cfg.Auth.JWTSigningKey)
	str("DZINZA_JWT_ISSUER", &cfg.Auth.Issuer)
	str("DZINZA_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("DZINZA_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("DZINZA_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("DZINZA_REDIS_URL", &cfg.Lock.RedisURL)
	dur("DZINZA_LOCK_TTL", &cfg.Lock.TTL)
	str("DZINZA_BLOB_DRIVER", &cfg.Blob.Driver)
	str("DZINZA_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("DZINZA_BLOB_S3_BUCKET", &cfg.Blob.S3Bucket)
	str("DZINZA_BLOB_S3_REGION", &cfg.Blob.S3Region)
	str("DZINZA_BLOB_S3_ENDPOINT", &cfg.Blob.S3Endpoint)
	flag("DZINZA_BLOB_S3_PATH_STYLE", &cfg.Blob.S3PathStyle)
	str("DZINZA_RECONCILE_SCHEDULE", &cfg.Jobs.ReconcileSchedule)
	str("DZINZA_EXPORT_SCHEDULE", &cfg.Jobs.ExportSchedule)
	str("DZINZA_LOG_LEVEL", &cfg.Logging.Level)
	str("DZINZA_LOG_FORMAT", &cfg.Logging.Format)
	num("DZINZA_RETRY_ATTEMPTS", &cfg.Core.RetryAttempts)
	dur("DZINZA_RETRY_BACKOFF", &cfg.Core.RetryBackoff)
	dur("DZINZA_OPERATION_TIMEOUT", &cfg.Core.OperationTimeout)
	return errors.Join(errs...)
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "memory":
	case "fs":
		if c.Blob.FSRoot == "" {
			errs = append(errs, errors.New("blob.fs_root is required for the fs driver"))
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			errs = append(errs, errors.New("blob.s3_bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwt_signing_key is required"))
	}
	if c.Core.RetryAttempts < 1 {
		errs = append(errs, errors.New("core.retry_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}
