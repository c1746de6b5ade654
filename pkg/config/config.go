package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Storefront   StorefrontConfig
	Checkout     CheckoutConfig
	Sendgrid     SendgridConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FRESHORA_APP_ENV" required:"true"`
	Port         string `envconfig:"FRESHORA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FRESHORA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FRESHORA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FRESHORA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FRESHORA_DB_DSN"`
	Driver string `envconfig:"FRESHORA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FRESHORA_DB_HOST"`
	LegacyPort     int    `envconfig:"FRESHORA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FRESHORA_DB_USER"`
	LegacyPassword string `envconfig:"FRESHORA_DB_PASSWORD"`
	LegacyName     string `envconfig:"FRESHORA_DB_NAME"`
	LegacySSLMode  string `envconfig:"FRESHORA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FRESHORA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FRESHORA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FRESHORA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FRESHORA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FRESHORA_REDIS_URL"`
	Address      string        `envconfig:"FRESHORA_REDIS_ADDR"`
	Password     string        `envconfig:"FRESHORA_REDIS_PASSWORD"`
	DB           int           `envconfig:"FRESHORA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FRESHORA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FRESHORA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FRESHORA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FRESHORA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FRESHORA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies the bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"FRESHORA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FRESHORA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FRESHORA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"FRESHORA_STRIPE_API_KEY"`
	Secret   string `envconfig:"FRESHORA_STRIPE_WEBHOOK_SECRET"`
	Env      string `envconfig:"FRESHORA_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"FRESHORA_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// StorefrontConfig describes the buyer-facing web app.
type StorefrontConfig struct {
	BaseURL        string   `envconfig:"FRESHORA_STOREFRONT_URL" default:"http://localhost:5173"`
	AllowedOrigins []string `envconfig:"FRESHORA_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

type CheckoutConfig struct {
	NotificationTimeout time.Duration `envconfig:"FRESHORA_CHECKOUT_NOTIFICATION_TIMEOUT" default:"10s"`
	WebhookEventTTL     time.Duration `envconfig:"FRESHORA_WEBHOOK_EVENT_TTL" default:"72h"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"FRESHORA_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"FRESHORA_SENDGRID_FROM_EMAIL" default:"orders@freshora.app"`
	FromName    string `envconfig:"FRESHORA_SENDGRID_FROM_NAME" default:"Freshora"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FRESHORA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"FRESHORA_PUBSUB_ORDERS_TOPIC" default:"freshora-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FRESHORA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FRESHORA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FRESHORA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the background worker.
type CronConfig struct {
	Interval          time.Duration `envconfig:"FRESHORA_CRON_INTERVAL" default:"5m"`
	LockTTL           time.Duration `envconfig:"FRESHORA_CRON_LOCK_TTL" default:"4m"`
	PendingPaymentAge time.Duration `envconfig:"FRESHORA_PENDING_PAYMENT_AGE" default:"30m"`
	SweepBatchSize    int           `envconfig:"FRESHORA_PENDING_PAYMENT_BATCH_SIZE" default:"100"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FRESHORA_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
