package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for our application
type Config struct {
	Port        string `envconfig:"PORT" default:"3001"`
	Origin      string `envconfig:"ORIGIN" default:"http://localhost:4200"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the socket peer is the client.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	JWTSecret            string        `envconfig:"JWT_SECRET" required:"true"`
	JWTRefreshSecret     string        `envconfig:"JWT_REFRESH_SECRET" required:"true"`
	JWTExpiration        time.Duration `envconfig:"JWT_EXPIRATION" default:"168h"`
	JWTRefreshExpiration time.Duration `envconfig:"JWT_REFRESH_EXPIRATION" default:"720h"`

	StoreDriver string         `envconfig:"STORE_DRIVER" default:"mysql"`
	Database    DatabaseConfig `envconfig:"DB"`
	Redis       RedisConfig    `envconfig:"REDIS"`

	ClinicTimezone       string        `envconfig:"CLINIC_TIMEZONE" default:"UTC"`
	CancellationLeadTime time.Duration `envconfig:"CANCELLATION_LEAD_TIME" default:"24h"`

	AuthRateLimit   float64 `envconfig:"AUTH_RATE_LIMIT" default:"1"`
	AuthRateBurst   int     `envconfig:"AUTH_RATE_BURST" default:"5"`
	CleanupSchedule string  `envconfig:"CLEANUP_SCHEDULE" default:"5 0 * * *"`
}

// DatabaseConfig holds database connection details. Nested fields carry no
// envconfig tag: a tagged field also falls back to its bare name (PORT,
// PASSWORD) when the prefixed variable is unset.
type DatabaseConfig struct {
	Host     string `default:"localhost"`
	Port     string `default:"3306"`
	Username string `default:"root"`
	Password string
	Name     string `default:"clinic"`
}

// RedisConfig holds the token denylist connection. An empty Addr keeps the
// denylist in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `default:"0"`
}

// DSN builds the MySQL data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Location resolves ClinicTimezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ClinicTimezone)
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must not be empty")
	}

	switch cfg.StoreDriver {
	case "mysql", "memory":
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want mysql or memory", cfg.StoreDriver)
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("invalid CLINIC_TIMEZONE: %w", err)
	}

	if cfg.JWTExpiration <= 0 || cfg.JWTRefreshExpiration <= 0 {
		return nil, fmt.Errorf("token expirations must be positive")
	}

	return &cfg, nil
}
