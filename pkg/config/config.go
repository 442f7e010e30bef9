package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	JWT          JWTConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Polar        PolarConfig
	Email        EmailConfig
	Vapi         VapiConfig
	OpenRouter   OpenRouterConfig
	Fal          FalConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate covers the cross-field rules envconfig tags cannot express.
// Problems are aggregated so a misconfigured deployment surfaces every
// missing value at once instead of one per restart.
func (c *Config) validate() error {
	var err error
	if _, urlErr := url.ParseRequestURI(c.App.PublicURL); urlErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s must be an absolute URL: %w", EnvPublicURL, urlErr))
	}
	if envErr := c.Polar.validateEnvironment(); envErr != nil {
		err = multierr.Append(err, envErr)
	}
	if c.DB.DSN == "" && c.FeatureFlags.DurableBilling && !c.FeatureFlags.UseSQLite {
		err = multierr.Append(err, fmt.Errorf("%s is required when durable billing is enabled", EnvDBDSN))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"AGENTDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"AGENTDESK_APP_PORT" default:"8080"`
	PublicURL    string `envconfig:"AGENTDESK_PUBLIC_URL" required:"true"`
	LogLevel     string `envconfig:"AGENTDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AGENTDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type JWTConfig struct {
	Secret            string `envconfig:"AGENTDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AGENTDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AGENTDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type DBConfig struct {
	DSN             string        `envconfig:"AGENTDESK_DB_DSN"`
	MaxOpenConns    int           `envconfig:"AGENTDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGENTDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGENTDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGENTDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AGENTDESK_REDIS_URL"`
	Address      string        `envconfig:"AGENTDESK_REDIS_ADDR"`
	Password     string        `envconfig:"AGENTDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGENTDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGENTDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGENTDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGENTDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGENTDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGENTDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis connection is configured at all. The
// webhook idempotency guard degrades gracefully without one.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	// DurableBilling swaps the in-memory subscription repository for the
	// GORM-backed one. The in-memory store is the template default and is
	// lost on restart.
	DurableBilling bool `envconfig:"AGENTDESK_DURABLE_BILLING" default:"false"`
	UseSQLite      bool `envconfig:"AGENTDESK_USE_SQLITE" default:"false"`
	AutoMigrate    bool `envconfig:"AGENTDESK_AUTO_MIGRATE" default:"false"`
}

type PolarConfig struct {
	AccessToken      string `envconfig:"AGENTDESK_POLAR_ACCESS_TOKEN" required:"true"`
	WebhookSecret    string `envconfig:"AGENTDESK_POLAR_WEBHOOK_SECRET" required:"true"`
	Env              string `envconfig:"AGENTDESK_POLAR_ENV" default:"production"`
	ProductIDMonthly string `envconfig:"AGENTDESK_POLAR_PRODUCT_ID_MONTHLY" required:"true"`
	ProductIDOnetime string `envconfig:"AGENTDESK_POLAR_PRODUCT_ID_ONETIME" required:"true"`
}

// Environment returns the normalized Polar environment (sandbox/production).
func (p PolarConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return PolarEnvProduction
	}
	return env
}

func (p PolarConfig) validateEnvironment() error {
	switch p.Environment() {
	case PolarEnvSandbox, PolarEnvProduction:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPolarEnv, PolarEnvSandbox, PolarEnvProduction)
	}
}

type EmailConfig struct {
	ResendAPIKey string `envconfig:"AGENTDESK_RESEND_API_KEY" required:"true"`
	FromEmail    string `envconfig:"AGENTDESK_RESEND_FROM_EMAIL" required:"true"`
	FromName     string `envconfig:"AGENTDESK_RESEND_FROM_NAME" default:"AgentDesk Access"`
	// AccessURL is the post-purchase destination; the order id is appended
	// as a query parameter when the delivery email is rendered.
	AccessURL string `envconfig:"AGENTDESK_ACCESS_URL" required:"true"`
}

type VapiConfig struct {
	BaseURL string `envconfig:"AGENTDESK_VAPI_BASE_URL" default:"https://api.vapi.ai"`
}

type OpenRouterConfig struct {
	APIKey  string `envconfig:"AGENTDESK_OPENROUTER_API_KEY"`
	Model   string `envconfig:"AGENTDESK_OPENROUTER_MODEL" default:"openai/gpt-oss-20b:free"`
	BaseURL string `envconfig:"AGENTDESK_OPENROUTER_BASE_URL" default:"https://openrouter.ai/api"`
}

type FalConfig struct {
	APIKey  string `envconfig:"AGENTDESK_FAL_API_KEY"`
	Model   string `envconfig:"AGENTDESK_FAL_MODEL" default:"fal-ai/flux/dev"`
	BaseURL string `envconfig:"AGENTDESK_FAL_BASE_URL" default:"https://fal.run"`
}
