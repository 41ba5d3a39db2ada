package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// FileEnv names an optional config file (yaml, json, toml or .env). Environment
// variables override its values.
const FileEnv = "PORTABLE_CONFIG"

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"PORTABLE_HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"PORTABLE_HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"PORTABLE_HTTP_WRITE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PORTABLE_HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
	// MaxArchiveSize bounds both the upload and its extracted contents.
	MaxArchiveSize int64  `yaml:"max_archive_size" env:"PORTABLE_MAX_ARCHIVE_SIZE" env-default:"104857600"`
	AssetsDir      string `yaml:"assets_dir" env:"PORTABLE_ASSETS_DIR" env-default:"assets"`
	TempDir        string `yaml:"temp_dir" env:"PORTABLE_TEMP_DIR"`
	// ErrorMode is how the transfer page shows rejection details: "text" or "markup".
	ErrorMode string `yaml:"error_mode" env:"PORTABLE_ERROR_MODE" env-default:"text"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

type StorageConfig struct {
	Backend       string      `yaml:"backend" env:"PORTABLE_STORAGE_BACKEND" env-default:"local"`
	Dir           string      `yaml:"dir" env:"PORTABLE_STORAGE_DIR" env-default:"/var/portable"`
	PublicBaseURL string      `yaml:"public_base_url" env:"PORTABLE_PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
	Minio         MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET" env-default:"challenge-files"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
}

type DatabaseConfig struct {
	// DSN selects the postgres repository; empty keeps challenges in memory.
	DSN string `yaml:"dsn" env:"PORTABLE_DATABASE_DSN"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"challenge-events"`
}

type AuthConfig struct {
	JWKSUrl      string `yaml:"jwks_url" env:"AUTH_JWKS_URL"`
	Issuer       string `yaml:"issuer" env:"AUTH_ISSUER"`
	Audience     string `yaml:"audience" env:"AUTH_AUDIENCE"`
	JWKSCacheTTL int    `yaml:"jwks_cache_ttl" env:"AUTH_JWKS_CACHE_TTL" env-default:"900"` // seconds
	AdminRole    string `yaml:"admin_role" env:"AUTH_ADMIN_ROLE" env-default:"admin"`
	CookieName   string `yaml:"cookie_name" env:"AUTH_COOKIE_NAME" env-default:"session"`
}

// Load reads the config file named by PORTABLE_CONFIG, if any, then the environment.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv(FileEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageLocal, StorageMinio:
	default:
		return fmt.Errorf("invalid PORTABLE_STORAGE_BACKEND %q: want %s or %s", c.Storage.Backend, StorageLocal, StorageMinio)
	}
	switch c.HTTP.ErrorMode {
	case "text", "markup":
	default:
		return fmt.Errorf("invalid PORTABLE_ERROR_MODE %q: want text or markup", c.HTTP.ErrorMode)
	}
	if c.HTTP.MaxArchiveSize <= 0 {
		return fmt.Errorf("invalid PORTABLE_MAX_ARCHIVE_SIZE: %d", c.HTTP.MaxArchiveSize)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// Usage describes the environment variables Load understands.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
