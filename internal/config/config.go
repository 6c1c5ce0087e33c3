package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

const defaultSecret = "secret"

// Load reads .env (if present), config.yaml (if present) and BLOG_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		logger.Debug("Config file not found, using environment and defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")

	v.SetDefault("jwt.secret", defaultSecret)
	v.SetDefault("jwt.ttl", "60m")
	v.SetDefault("jwt.refresh_ttl", "336h")
	v.SetDefault("jwt.cleanup_interval", "30m")

	v.SetDefault("storage.driver", "disk")
	v.SetDefault("storage.root", "./storage")
	v.SetDefault("storage.max_upload_size", "2MiB")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.login_burst", 10)

	v.SetDefault("admin.name", "admin")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.email", "admin@example.com")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("pagination.default_limit", 10)
	v.SetDefault("pagination.max_limit", 100)
}

// bindLegacyEnv keeps the variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "BLOG_DATABASE_DSN", "DSN")
	_ = v.BindEnv("jwt.secret", "BLOG_JWT_SECRET", "JWT_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "BLOG_STORAGE_BUCKET", "BUCKET_NAME")
	_ = v.BindEnv("storage.account_id", "BLOG_STORAGE_ACCOUNT_ID", "ACCOUNT_ID")
	_ = v.BindEnv("storage.access_key_id", "BLOG_STORAGE_ACCESS_KEY_ID", "ACCESS_KEY_ID")
	_ = v.BindEnv("storage.access_key_secret", "BLOG_STORAGE_ACCESS_KEY_SECRET", "ACCESS_KEY_SECRET")
	_ = v.BindEnv("storage.public_url", "BLOG_STORAGE_PUBLIC_URL", "PUBLIC_URL")
	_ = v.BindEnv("oauth.google_key", "BLOG_OAUTH_GOOGLE_KEY", "GOOGLE_KEY")
	_ = v.BindEnv("oauth.google_secret", "BLOG_OAUTH_GOOGLE_SECRET", "GOOGLE_SECRET")
	_ = v.BindEnv("server.port", "BLOG_SERVER_PORT", "PORT")
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == defaultSecret {
		if c.IsProduction() {
			return fmt.Errorf("jwt.secret cannot be default or empty in production")
		}
		logger.Warn("Using unsafe default JWT secret. Do not use this in production!")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "disk":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	for key, val := range map[string]string{
		"jwt.ttl":              c.JWT.TTL,
		"jwt.refresh_ttl":      c.JWT.RefreshTTL,
		"jwt.cleanup_interval": c.JWT.CleanupInterval,
		"ratelimit.window":     c.RateLimit.Window,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid %s format '%s': %w", key, val, err)
		}
	}
	if n, err := humanize.ParseBytes(c.Storage.MaxUploadSize); err != nil || n == 0 {
		return fmt.Errorf("invalid storage.max_upload_size '%s'", c.Storage.MaxUploadSize)
	}
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("invalid pagination limits %d/%d", c.Pagination.DefaultLimit, c.Pagination.MaxLimit)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) GetBaseURL() string {
	if c.Server.BaseURL != "" {
		return strings.TrimRight(c.Server.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

// Durations are validated by Validate, so parse errors are ignored here.

func (c *Config) TokenTTL() time.Duration {
	d, _ := time.ParseDuration(c.JWT.TTL)
	return d
}

func (c *Config) RefreshTTL() time.Duration {
	d, _ := time.ParseDuration(c.JWT.RefreshTTL)
	return d
}

func (c *Config) CleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.JWT.CleanupInterval)
	return d
}

func (c *Config) RateWindow() time.Duration {
	d, _ := time.ParseDuration(c.RateLimit.Window)
	return d
}

// MaxUploadBytes is the per-file upload ceiling; sizes are validated by Validate.
func (c *Config) MaxUploadBytes() int64 {
	n, _ := humanize.ParseBytes(c.Storage.MaxUploadSize)
	return int64(n)
}

func (c *Config) GoogleEnabled() bool {
	return c.OAuth.GoogleKey != "" && c.OAuth.GoogleSecret != ""
}
