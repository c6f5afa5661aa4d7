// Package config maps environment variables onto a strongly typed struct.
//
// Every tunable of the auth core lives here; components receive the values
// through constructors and never read the environment themselves.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration for the auth core.
type Config struct {
	// Server
	Port        string `env:"PORT"        envDefault:"8080"`
	Environment string `env:"APP_ENV"     envDefault:"development"`
	AppURL      string `env:"APP_URL"     envDefault:"http://localhost:8080"`

	// TrustProxyHeaders enables X-Forwarded-For parsing for client IPs.
	// Only set this when a trusted proxy strips inbound forwarding headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// PostgreSQL
	DatabaseURL   string `env:"DATABASE_URL,required"`
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`

	// Redis (cache collaborator: revocation blacklist, rate-limit buckets)
	RedisURL string `env:"REDIS_URL"`

	// Token service
	JWTSecret       string        `env:"JWT_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Password hashing
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// Account lockout
	MaxFailedLogins int           `env:"MAX_FAILED_LOGINS" envDefault:"10"`
	LockoutDuration time.Duration `env:"LOCKOUT_DURATION"  envDefault:"1h"`

	// Session manager composition (validated by the session factory)
	SessionStorage string `env:"SESSION_STORAGE" envDefault:"database"`
	SessionAudit   string `env:"SESSION_AUDIT"   envDefault:"logger"`
	SessionBackend string `env:"SESSION_BACKEND" envDefault:"jwt"`

	// Mailer
	MailerDriver string `env:"MAILER_DRIVER" envDefault:"dev"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	// Observability
	SentryDSN string `env:"SENTRY_DSN"`
}

// Load parses the environment into a Config. Fields marked required fail
// loudly at startup rather than at first use.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
