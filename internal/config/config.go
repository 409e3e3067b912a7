// Package config loads PagePress configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	HTTP      HTTPConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Browser   BrowserConfig
	Render    RenderConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Worker    WorkerConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            string        `envconfig:"HTTP_PORT" default:"8080"`
	PublicBaseURL   string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	CORSOrigins     []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string `envconfig:"LOG_LEVEL" default:"info"`
	Format    string `envconfig:"LOG_FORMAT" default:"json"`
	AddSource bool   `envconfig:"LOG_SOURCE" default:"false"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL     string `envconfig:"DATABASE_URL" required:"true"`
	Migrate bool   `envconfig:"DATABASE_MIGRATE" default:"true"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr       string `envconfig:"REDIS_ADDR" required:"true"`
	Password   string `envconfig:"REDIS_PASSWORD"`
	DB         int    `envconfig:"REDIS_DB" default:"0"`
	SweepQueue string `envconfig:"SWEEP_QUEUE_NAME" default:"pagepress:sweep"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Provider          string `envconfig:"STORAGE_PROVIDER" default:"localfs"`
	LocalRoot         string `envconfig:"STORAGE_LOCAL_ROOT" default:"./data/pdfs"`
	DriveClientID     string `envconfig:"GDRIVE_CLIENT_ID"`
	DriveClientSecret string `envconfig:"GDRIVE_CLIENT_SECRET"`
	DriveRefreshToken string `envconfig:"GDRIVE_REFRESH_TOKEN"`
	DriveFolderID     string `envconfig:"GDRIVE_FOLDER_ID"`
}

// BrowserConfig points at the remote headless browser service.
type BrowserConfig struct {
	Endpoint string `envconfig:"BROWSERLESS_ENDPOINT" default:"wss://production-sfo.browserless.io"`
	APIKey   string `envconfig:"BROWSERLESS_API_KEY"`
}

// RenderConfig holds the render job timing parameters.
type RenderConfig struct {
	NavigationTimeout time.Duration `envconfig:"RENDER_NAVIGATION_TIMEOUT" default:"60s"`
	SettleTimeout     time.Duration `envconfig:"RENDER_SETTLE_TIMEOUT" default:"30s"`
	SettleInterval    time.Duration `envconfig:"RENDER_SETTLE_INTERVAL" default:"200ms"`
	JobTimeout        time.Duration `envconfig:"RENDER_JOB_TIMEOUT" default:"3m"`
	ChunkSize         int           `envconfig:"RENDER_CHUNK_SIZE" default:"65536"`
}

// RateLimitConfig holds the per-principal render rate limit.
type RateLimitConfig struct {
	RequestsPerMinute int  `envconfig:"RENDER_RATE_PER_MINUTE" default:"10"`
	Burst             int  `envconfig:"RENDER_RATE_BURST" default:"3"`
	Enabled           bool `envconfig:"RENDER_RATE_ENABLED" default:"true"`
}

// AuthConfig holds Google sign-in and session settings.
type AuthConfig struct {
	GoogleClientID     string        `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `envconfig:"GOOGLE_CLIENT_SECRET"`
	RedirectURL        string        `envconfig:"GOOGLE_REDIRECT_URL" default:"http://localhost:8080/auth/callback"`
	SessionSecret      string        `envconfig:"SESSION_SECRET"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	CookieName         string        `envconfig:"SESSION_COOKIE_NAME" default:"pagepress_session"`
	CookieSecure       bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
	PostLoginRedirect  string        `envconfig:"POST_LOGIN_REDIRECT" default:"/"`
}

// WorkerConfig holds settings only the sweeper process reads.
type WorkerConfig struct {
	MetricsPort string `envconfig:"WORKER_METRICS_PORT" default:"9091"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadStorage loads only the storage section, for tools that need no
// database or Redis.
func LoadStorage() (StorageConfig, error) {
	var cfg StorageConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to load storage config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the API server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Browser.APIKey == "" {
		missing = append(missing, "BROWSERLESS_API_KEY")
	}
	if c.Auth.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.Auth.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if len(c.Auth.SessionSecret) < 32 {
		missing = append(missing, "SESSION_SECRET (at least 32 bytes)")
	}
	if c.Storage.Provider == "gdrive" {
		if c.Storage.DriveClientID == "" || c.Storage.DriveClientSecret == "" || c.Storage.DriveRefreshToken == "" {
			missing = append(missing, "GDRIVE_CLIENT_ID/GDRIVE_CLIENT_SECRET/GDRIVE_REFRESH_TOKEN")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Render.SettleInterval <= 0 || c.Render.ChunkSize <= 0 {
		return fmt.Errorf("render settle interval and chunk size must be positive")
	}
	return nil
}

// BrowserURL returns the websocket endpoint with the API token attached.
func (b BrowserConfig) BrowserURL() (string, error) {
	u, err := url.Parse(b.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid browser endpoint: %w", err)
	}
	if b.APIKey != "" {
		q := u.Query()
		q.Set("token", b.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
