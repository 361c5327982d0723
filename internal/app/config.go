package app

import (
	"errors"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the console and its worker.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN is optional; the login audit trail is disabled without it.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"4"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	ProfileCookie string        `envconfig:"PROFILE_COOKIE" default:"console_profile"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	AuthBaseURL        string `envconfig:"AUTH_BASE_URL" required:"true"`
	AuthLoginPath      string `envconfig:"AUTH_LOGIN_PATH" default:"/api/token/"`
	AuthActorLoginPath string `envconfig:"AUTH_ACTOR_LOGIN_PATH" default:"/api/motoristas/login/"`
	AuthRefreshPath    string `envconfig:"AUTH_REFRESH_PATH" default:"/api/token/refresh/"`

	APIBaseURL      string        `envconfig:"API_BASE_URL" required:"true"`
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	DefaultPageSize int           `envconfig:"DEFAULT_PAGE_SIZE" default:"20"`

	RefreshPeriod    time.Duration `envconfig:"REFRESH_PERIOD" default:"60s"`
	RefreshThreshold time.Duration `envconfig:"REFRESH_THRESHOLD" default:"300s"`
	RefreshScheduler bool          `envconfig:"REFRESH_SCHEDULER" default:"true"`

	LoginRateLimit int `envconfig:"LOGIN_RATE_LIMIT" default:"10"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"2"`
	SweepCron         string `envconfig:"SWEEP_CRON" default:"@every 1m"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	for name, raw := range map[string]string{"AUTH_BASE_URL": c.AuthBaseURL, "API_BASE_URL": c.APIBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New(name + " must be an absolute URL")
		}
	}
	if c.RefreshPeriod <= 0 || c.RefreshThreshold <= 0 {
		return errors.New("refresh period and threshold must be positive")
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 20
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// AuditEnabled reports whether a Postgres DSN was configured.
func (c *Config) AuditEnabled() bool {
	return c != nil && c.PGDSN != ""
}
