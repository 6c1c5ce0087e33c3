package config

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Admin      AdminConfig      `mapstructure:"admin"`
	OAuth      OAuthConfig      `mapstructure:"oauth"`
	Log        LogConfig        `mapstructure:"log"`
	Pagination PaginationConfig `mapstructure:"pagination"`
}

type ServerConfig struct {
	// Port: TCP port the HTTP server binds to
	Port int `mapstructure:"port"`

	// Env: development, staging or production
	Env string `mapstructure:"env"`

	// BaseURL: public root used to build absolute links (disk storage URLs, OAuth callback)
	BaseURL string `mapstructure:"base_url"`

	// CorsOrigins: allowed origins, supports "*", "*.example.com" and "**.example.com"
	CorsOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	// Driver: postgres or sqlite
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`

	// TTL: lifetime of an access token (e.g. "60m")
	TTL string `mapstructure:"ttl"`

	// RefreshTTL: window after first issuance during which a token may be refreshed
	RefreshTTL string `mapstructure:"refresh_ttl"`

	// CleanupInterval: how often expired revoked tokens are purged
	CleanupInterval string `mapstructure:"cleanup_interval"`
}

type StorageConfig struct {
	// Driver: s3 or disk
	Driver string `mapstructure:"driver"`

	// Root: directory used by the disk driver
	Root string `mapstructure:"root"`

	Bucket          string `mapstructure:"bucket"`
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`

	// PublicURL: fmt pattern with a single %s for the object key
	PublicURL string `mapstructure:"public_url"`

	// MaxUploadSize: per-file ceiling (e.g. "2MiB")
	MaxUploadSize string `mapstructure:"max_upload_size"`
}

type RedisConfig struct {
	// URL: when set, revoked tokens are tracked in redis instead of the database
	URL string `mapstructure:"url"`
}

type RateLimitConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Requests int    `mapstructure:"requests"`
	Window   string `mapstructure:"window"`

	// LoginBurst: attempts allowed per IP before the 1 req/s login limiter kicks in
	LoginBurst int `mapstructure:"login_burst"`
}

type AdminConfig struct {
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type OAuthConfig struct {
	GoogleKey    string `mapstructure:"google_key"`
	GoogleSecret string `mapstructure:"google_secret"`
	SessionKey   string `mapstructure:"session_key"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type PaginationConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}
