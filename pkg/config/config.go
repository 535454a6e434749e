package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Booking      BookingConfig
	Cancellation CancellationConfig
	Payment      PaymentConfig
	Paystack     PaystackConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cancellation.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"CAMPUSDIGS_APP_ENV" required:"true"`
	Port         string   `envconfig:"CAMPUSDIGS_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"CAMPUSDIGS_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"CAMPUSDIGS_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"CAMPUSDIGS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"CAMPUSDIGS_APP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CAMPUSDIGS_SERVICE_KIND" default:"api"`
	// MetricsAddr is where worker binaries serve /metrics. Empty disables it.
	MetricsAddr string `envconfig:"CAMPUSDIGS_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"CAMPUSDIGS_DB_DSN"`
	Driver string `envconfig:"CAMPUSDIGS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAMPUSDIGS_DB_HOST"`
	LegacyPort     int    `envconfig:"CAMPUSDIGS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAMPUSDIGS_DB_USER"`
	LegacyPassword string `envconfig:"CAMPUSDIGS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAMPUSDIGS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAMPUSDIGS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAMPUSDIGS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAMPUSDIGS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAMPUSDIGS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAMPUSDIGS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"CAMPUSDIGS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAMPUSDIGS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CAMPUSDIGS_REDIS_ADDR"`
	Password     string        `envconfig:"CAMPUSDIGS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAMPUSDIGS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAMPUSDIGS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAMPUSDIGS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAMPUSDIGS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAMPUSDIGS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAMPUSDIGS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig covers verification of tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"CAMPUSDIGS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CAMPUSDIGS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CAMPUSDIGS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CAMPUSDIGS_AUTO_MIGRATE" default:"false"`
}

// BookingConfig bounds what a student may request.
type BookingConfig struct {
	MinLeaseMonths        int             `envconfig:"CAMPUSDIGS_BOOKING_MIN_LEASE_MONTHS" default:"1"`
	MaxLeaseMonths        int             `envconfig:"CAMPUSDIGS_BOOKING_MAX_LEASE_MONTHS" default:"12"`
	DefaultCommissionRate decimal.Decimal `envconfig:"CAMPUSDIGS_BOOKING_DEFAULT_COMMISSION_RATE" default:"0.10"`
	ReferencePrefix       string          `envconfig:"CAMPUSDIGS_BOOKING_REFERENCE_PREFIX" default:"CD"`
}

func (b BookingConfig) validate() error {
	if b.MinLeaseMonths <= 0 {
		return fmt.Errorf("%s must be positive", EnvBookingMinLease)
	}
	if b.MinLeaseMonths >= b.MaxLeaseMonths {
		return fmt.Errorf("%s must be less than %s", EnvBookingMinLease, EnvBookingMaxLease)
	}
	if b.DefaultCommissionRate.IsNegative() || b.DefaultCommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1]", EnvBookingCommissionRate)
	}
	return nil
}

// CancellationConfig holds the refund tiers applied to paid bookings.
type CancellationConfig struct {
	FullRefundWindow         time.Duration   `envconfig:"CAMPUSDIGS_CANCEL_FULL_REFUND_WINDOW" default:"168h"`
	PartialRefundPercent     decimal.Decimal `envconfig:"CAMPUSDIGS_CANCEL_PARTIAL_REFUND_PERCENT" default:"50"`
	AfterMoveInRefundPercent decimal.Decimal `envconfig:"CAMPUSDIGS_CANCEL_AFTER_MOVE_IN_REFUND_PERCENT" default:"0"`
}

func (c CancellationConfig) validate() error {
	if c.FullRefundWindow < 0 {
		return fmt.Errorf("%s must be non-negative", EnvCancelFullRefundWindow)
	}
	for name, pct := range map[string]decimal.Decimal{
		EnvCancelPartialPercent:     c.PartialRefundPercent,
		EnvCancelAfterMoveInPercent: c.AfterMoveInRefundPercent,
	} {
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%s must be within [0,100]", name)
		}
	}
	return nil
}

type PaymentConfig struct {
	ReferencePrefix string          `envconfig:"CAMPUSDIGS_PAYMENT_REFERENCE_PREFIX" default:"CDIGS"`
	Currency        string          `envconfig:"CAMPUSDIGS_PAYMENT_CURRENCY" default:"NGN"`
	AmountTolerance decimal.Decimal `envconfig:"CAMPUSDIGS_PAYMENT_AMOUNT_TOLERANCE" default:"1.00"`
	IntentTTL       time.Duration   `envconfig:"CAMPUSDIGS_PAYMENT_INTENT_TTL" default:"24h"`
	SweepGrace      time.Duration   `envconfig:"CAMPUSDIGS_PAYMENT_SWEEP_GRACE" default:"15m"`
	SweepBatchSize  int             `envconfig:"CAMPUSDIGS_PAYMENT_SWEEP_BATCH_SIZE" default:"50"`
	WebhookEventTTL time.Duration   `envconfig:"CAMPUSDIGS_PAYMENT_WEBHOOK_EVENT_TTL" default:"72h"`
}

func (p PaymentConfig) validate() error {
	if p.AmountTolerance.IsNegative() {
		return fmt.Errorf("%s must be non-negative", EnvPaymentTolerance)
	}
	if p.IntentTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentIntentTTL)
	}
	return nil
}

type PaystackConfig struct {
	SecretKey   string        `envconfig:"CAMPUSDIGS_PAYSTACK_SECRET_KEY"`
	BaseURL     string        `envconfig:"CAMPUSDIGS_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"CAMPUSDIGS_PAYSTACK_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"CAMPUSDIGS_PAYSTACK_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CAMPUSDIGS_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"CAMPUSDIGS_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	BookingsTopic string `envconfig:"CAMPUSDIGS_PUBSUB_BOOKINGS_TOPIC" default:"cd-booking-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CAMPUSDIGS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CAMPUSDIGS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CAMPUSDIGS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CAMPUSDIGS_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CAMPUSDIGS_CRON_INTERVAL" default:"5m"`
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
