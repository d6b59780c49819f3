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
	Platform     PlatformConfig
	Stripe       StripeConfig
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
	Env          string `envconfig:"STAGEPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"STAGEPASS_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"STAGEPASS_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"STAGEPASS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STAGEPASS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STAGEPASS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STAGEPASS_DB_DSN"`
	Driver string `envconfig:"STAGEPASS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STAGEPASS_DB_HOST"`
	LegacyPort     int    `envconfig:"STAGEPASS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STAGEPASS_DB_USER"`
	LegacyPassword string `envconfig:"STAGEPASS_DB_PASSWORD"`
	LegacyName     string `envconfig:"STAGEPASS_DB_NAME"`
	LegacySSLMode  string `envconfig:"STAGEPASS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STAGEPASS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STAGEPASS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STAGEPASS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STAGEPASS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STAGEPASS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STAGEPASS_REDIS_ADDR"`
	Password     string        `envconfig:"STAGEPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"STAGEPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STAGEPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STAGEPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STAGEPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STAGEPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STAGEPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"STAGEPASS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STAGEPASS_JWT_ISSUER" required:"true"`
}

// PlatformConfig seeds platform_settings defaults. The table is authoritative
// once the service is running; these values only apply on first boot.
type PlatformConfig struct {
	FeeRate                string        `envconfig:"STAGEPASS_PLATFORM_FEE_RATE" default:"0.10"`
	ReviewDisclosureWindow time.Duration `envconfig:"STAGEPASS_REVIEW_DISCLOSURE_WINDOW" default:"336h"`
	DisputeFilingWindow    time.Duration `envconfig:"STAGEPASS_DISPUTE_FILING_WINDOW" default:"168h"`
	PaymentPendingTTL      time.Duration `envconfig:"STAGEPASS_PAYMENT_PENDING_TTL" default:"24h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STAGEPASS_STRIPE_API_KEY"`
	Secret string `envconfig:"STAGEPASS_STRIPE_SECRET"`
	Env    string `envconfig:"STAGEPASS_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STAGEPASS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STAGEPASS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STAGEPASS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BookingTopic             string `envconfig:"STAGEPASS_PUBSUB_BOOKING_TOPIC" default:"sp-booking-events"`
	BookingSubscription      string `envconfig:"STAGEPASS_PUBSUB_BOOKING_SUBSCRIPTION"`
	NotificationTopic        string `envconfig:"STAGEPASS_PUBSUB_NOTIFICATION_TOPIC" default:"sp-notification-events"`
	NotificationSubscription string `envconfig:"STAGEPASS_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STAGEPASS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STAGEPASS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STAGEPASS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STAGEPASS_CRON_INTERVAL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STAGEPASS_AUTO_MIGRATE" default:"false"`
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
