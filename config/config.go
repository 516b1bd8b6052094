package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/hirewire/admission/pkg/ratelimit"
)

// Config aggregates everything the admission server needs at startup.
type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"admission"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server ServerConfig
	Redis  RedisConfig
	Limits LimitsConfig
	Speed  SpeedConfig
	Bypass BypassConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `env:"SERVER_ADDR" envDefault:":8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	MaxHeaderBytes int `env:"SERVER_MAX_HEADER_BYTES" envDefault:"1048576"` // 1MB
}

// RedisConfig holds connection settings for the shared counter backend.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	KeyPrefix    string        `env:"REDIS_KEY_PREFIX" envDefault:"admission:"`
	OpTimeout    time.Duration `env:"REDIS_OP_TIMEOUT" envDefault:"250ms"`
	PingInterval time.Duration `env:"REDIS_PING_INTERVAL" envDefault:"5s"`
}

// LimitsConfig overrides the per-policy windows and budgets. Defaults match
// the production policy table.
type LimitsConfig struct {
	GlobalWindow    time.Duration `env:"LIMIT_GLOBAL_WINDOW" envDefault:"15m"`
	GlobalMax       int64         `env:"LIMIT_GLOBAL_MAX" envDefault:"1000"`
	AuthWindow      time.Duration `env:"LIMIT_AUTH_WINDOW" envDefault:"15m"`
	AuthMax         int64         `env:"LIMIT_AUTH_MAX" envDefault:"10"`
	UploadWindow    time.Duration `env:"LIMIT_UPLOAD_WINDOW" envDefault:"60m"`
	UploadMax       int64         `env:"LIMIT_UPLOAD_MAX" envDefault:"20"`
	APIWindow       time.Duration `env:"LIMIT_API_WINDOW" envDefault:"60s"`
	APIMax          int64         `env:"LIMIT_API_MAX" envDefault:"60"`
	SensitiveWindow time.Duration `env:"LIMIT_SENSITIVE_WINDOW" envDefault:"60m"`
	SensitiveMax    int64         `env:"LIMIT_SENSITIVE_MAX" envDefault:"5"`
}

// Policies materializes the configured limits as a policy set, keeping the
// built-in messages and the auth policy's failed-attempts-only counting.
func (c LimitsConfig) Policies() []ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()
	for i := range policies {
		switch policies[i].Name {
		case ratelimit.PolicyGlobal:
			policies[i].Window, policies[i].MaxCount = c.GlobalWindow, c.GlobalMax
		case ratelimit.PolicyAuth:
			policies[i].Window, policies[i].MaxCount = c.AuthWindow, c.AuthMax
		case ratelimit.PolicyUpload:
			policies[i].Window, policies[i].MaxCount = c.UploadWindow, c.UploadMax
		case ratelimit.PolicyAPI:
			policies[i].Window, policies[i].MaxCount = c.APIWindow, c.APIMax
		case ratelimit.PolicySensitive:
			policies[i].Window, policies[i].MaxCount = c.SensitiveWindow, c.SensitiveMax
		}
	}
	return policies
}

// SpeedConfig holds progressive-delay settings.
type SpeedConfig struct {
	Enabled        bool          `env:"SPEED_ENABLED" envDefault:"true"`
	Window         time.Duration `env:"SPEED_WINDOW" envDefault:"15m"`
	DelayAfter     int64         `env:"SPEED_DELAY_AFTER" envDefault:"100"`
	DelayIncrement time.Duration `env:"SPEED_DELAY_INCREMENT" envDefault:"500ms"`
	MaxDelay       time.Duration `env:"SPEED_MAX_DELAY" envDefault:"0"`
}

// Limiter converts the settings to the rate-limit package's form.
func (c SpeedConfig) Limiter() ratelimit.SpeedConfig {
	return ratelimit.SpeedConfig{
		Window:         c.Window,
		DelayAfter:     c.DelayAfter,
		DelayIncrement: c.DelayIncrement,
		MaxDelay:       c.MaxDelay,
	}
}

// BypassConfig holds the trusted-source allowlist. Health check paths always
// bypass admission regardless of this list.
type BypassConfig struct {
	Allowlist []string `env:"BYPASS_ALLOWLIST" envSeparator:","`
}

var dotenvOnce sync.Once

// Load populates cfg from the environment, reading a .env file first if one
// exists in the working directory.
func Load(cfg any) error {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// MustLoad is Load that panics on failure. Useful during startup where a
// missing required variable should halt the process.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
