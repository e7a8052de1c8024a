package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "digimart"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "DIGIMART_APP_ENV"
	EnvDBDSN  = "DIGIMART_DB_DSN"
	EnvDBHost = "DIGIMART_DB_HOST"
	EnvDBUser = "DIGIMART_DB_USER"
	EnvDBName = "DIGIMART_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Escrow       EscrowConfig
	Complaint    ComplaintConfig
	Disbursement DisbursementConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"DIGIMART_APP_ENV" required:"true"`
	Port         string `envconfig:"DIGIMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DIGIMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DIGIMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DIGIMART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DIGIMART_DB_DSN"`
	Driver string `envconfig:"DIGIMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DIGIMART_DB_HOST"`
	LegacyPort     int    `envconfig:"DIGIMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DIGIMART_DB_USER"`
	LegacyPassword string `envconfig:"DIGIMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"DIGIMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"DIGIMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DIGIMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DIGIMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DIGIMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DIGIMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DIGIMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DIGIMART_REDIS_ADDR"`
	Password     string        `envconfig:"DIGIMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"DIGIMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DIGIMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DIGIMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIGIMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DIGIMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DIGIMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DIGIMART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DIGIMART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DIGIMART_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenDays  int    `envconfig:"DIGIMART_JWT_REFRESH_TOKEN_DAYS" default:"30"`
}

// RefreshTokenTTL converts the configured day count into a duration.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(j.RefreshTokenDays) * 24 * time.Hour
}

// RateLimitConfig bounds how many authenticated requests one user may make
// per fixed window.
type RateLimitConfig struct {
	Window       time.Duration `envconfig:"DIGIMART_RATE_LIMIT_WINDOW" default:"1m"`
	PerUserLimit int64         `envconfig:"DIGIMART_RATE_LIMIT_PER_USER" default:"120"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DIGIMART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DIGIMART_AUTO_MIGRATE" default:"false"`
}

// EscrowConfig carries the money-movement policy knobs.
type EscrowConfig struct {
	// HoldWindow is how long seller funds stay escrowed after the hold is
	// created before the sweep may release them without buyer confirmation.
	HoldWindow time.Duration `envconfig:"DIGIMART_ESCROW_HOLD_WINDOW" default:"72h"`
	// PlatformFeePercent is deducted from the seller payout at release time.
	PlatformFeePercent string `envconfig:"DIGIMART_ESCROW_PLATFORM_FEE_PERCENT" default:"5"`
	// HighValueThresholdCents marks tickets whose hold amount is at or above
	// this value as high-value in the moderator queue.
	HighValueThresholdCents int `envconfig:"DIGIMART_ESCROW_HIGH_VALUE_THRESHOLD_CENTS" default:"5000000"`
}

// ComplaintConfig carries the dispute workflow policy knobs.
type ComplaintConfig struct {
	AppealWindow       time.Duration `envconfig:"DIGIMART_COMPLAINT_APPEAL_WINDOW" default:"72h"`
	SLAThreshold       time.Duration `envconfig:"DIGIMART_COMPLAINT_SLA_THRESHOLD" default:"48h"`
	MinDecisionNoteLen int           `envconfig:"DIGIMART_COMPLAINT_MIN_DECISION_NOTE_LEN" default:"20"`
	MinAppealReasonLen int           `envconfig:"DIGIMART_COMPLAINT_MIN_APPEAL_REASON_LEN" default:"20"`
	MinDescriptionLen  int           `envconfig:"DIGIMART_COMPLAINT_MIN_DESCRIPTION_LEN" default:"10"`
}

type DisbursementConfig struct {
	BatchSize int           `envconfig:"DIGIMART_DISBURSEMENT_BATCH_SIZE" default:"200"`
	Interval  time.Duration `envconfig:"DIGIMART_DISBURSEMENT_INTERVAL" default:"15m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DIGIMART_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"DIGIMART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DIGIMART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EscrowTopic              string `envconfig:"DIGIMART_PUBSUB_ESCROW_TOPIC" required:"true"`
	EscrowSubscription       string `envconfig:"DIGIMART_PUBSUB_ESCROW_SUBSCRIPTION" required:"true"`
	DisputesTopic            string `envconfig:"DIGIMART_PUBSUB_DISPUTES_TOPIC" required:"true"`
	DisputesSubscription     string `envconfig:"DIGIMART_PUBSUB_DISPUTES_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"DIGIMART_PUBSUB_NOTIFICATION_TOPIC" default:"dm-notification-events"`
	NotificationSubscription string `envconfig:"DIGIMART_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DIGIMART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DIGIMART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DIGIMART_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// IdempotencyTTL is how long consumers remember processed event IDs.
	IdempotencyTTL time.Duration `envconfig:"DIGIMART_OUTBOX_IDEMPOTENCY_TTL" default:"24h"`
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
