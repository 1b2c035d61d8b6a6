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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Square       SquareConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Eventing     EventingConfig
	RateLimit    RateLimitConfig
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
	Env          string `envconfig:"COURSEFORGE_APP_ENV" required:"true"`
	Port         string `envconfig:"COURSEFORGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COURSEFORGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COURSEFORGE_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"COURSEFORGE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"COURSEFORGE_DB_DSN"`

	LegacyHost     string `envconfig:"COURSEFORGE_DB_HOST"`
	LegacyPort     int    `envconfig:"COURSEFORGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COURSEFORGE_DB_USER"`
	LegacyPassword string `envconfig:"COURSEFORGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"COURSEFORGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"COURSEFORGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COURSEFORGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COURSEFORGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COURSEFORGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COURSEFORGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COURSEFORGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COURSEFORGE_REDIS_ADDR"`
	Password     string        `envconfig:"COURSEFORGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"COURSEFORGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COURSEFORGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COURSEFORGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COURSEFORGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COURSEFORGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COURSEFORGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"COURSEFORGE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"COURSEFORGE_JWT_ISSUER" required:"true"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"COURSEFORGE_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"COURSEFORGE_SQUARE_ENV" default:"sandbox"`
	WebhookSecret string `envconfig:"COURSEFORGE_SQUARE_WEBHOOK_SECRET"`
	LocationID    string `envconfig:"COURSEFORGE_SQUARE_LOCATION_ID"`
	WebhookURL    string `envconfig:"COURSEFORGE_SQUARE_WEBHOOK_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether the card gateway has credentials.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COURSEFORGE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"COURSEFORGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COURSEFORGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"COURSEFORGE_GCS_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"COURSEFORGE_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"COURSEFORGE_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
	EvidencePrefix    string        `envconfig:"COURSEFORGE_GCS_EVIDENCE_PREFIX" default:"evidence"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"COURSEFORGE_PUBSUB_NOTIFICATION_TOPIC" default:"cf-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"COURSEFORGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"COURSEFORGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"COURSEFORGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the scheduled worker.
type CronConfig struct {
	Interval              time.Duration `envconfig:"COURSEFORGE_CRON_INTERVAL" default:"24h"`
	LockTTL               time.Duration `envconfig:"COURSEFORGE_CRON_LOCK_TTL"` // zero derives interval + 1h
	NotificationRetention time.Duration `envconfig:"COURSEFORGE_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"COURSEFORGE_OUTBOX_RETENTION" default:"720h"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"COURSEFORGE_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type RateLimitConfig struct {
	VoucherValidateWindow time.Duration `envconfig:"COURSEFORGE_RATE_LIMIT_VOUCHER_WINDOW" default:"1m"`
	VoucherValidateLimit  int64         `envconfig:"COURSEFORGE_RATE_LIMIT_VOUCHER_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COURSEFORGE_AUTO_MIGRATE" default:"false"`
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
