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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Stripe       StripeConfig
	Resend       ResendConfig
	Ledger       LedgerConfig
	Classifier   ClassifierConfig
	Reconcile    ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Classifier.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLUBPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"CLUBPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLUBPAY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CLUBPAY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CLUBPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLUBPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLUBPAY_DB_DSN"`
	Driver string `envconfig:"CLUBPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CLUBPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"CLUBPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLUBPAY_DB_USER"`
	LegacyPassword string `envconfig:"CLUBPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLUBPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLUBPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLUBPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLUBPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLUBPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLUBPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CLUBPAY_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the local sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CLUBPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CLUBPAY_REDIS_ADDR"`
	Password     string        `envconfig:"CLUBPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLUBPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLUBPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLUBPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLUBPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLUBPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLUBPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies the bearer tokens issued to club staff for the admin API.
type JWTConfig struct {
	Secret            string `envconfig:"CLUBPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CLUBPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CLUBPAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CLUBPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CLUBPAY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"CLUBPAY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type StripeConfig struct {
	APIKey  string        `envconfig:"CLUBPAY_STRIPE_API_KEY"`
	Secret  string        `envconfig:"CLUBPAY_STRIPE_SECRET"`
	Env     string        `envconfig:"CLUBPAY_STRIPE_ENV" default:"test"`
	Timeout time.Duration `envconfig:"CLUBPAY_STRIPE_TIMEOUT" default:"20s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// ResendConfig drives outbound member and committee emails. An empty API key
// selects the logging sender.
type ResendConfig struct {
	APIKey     string `envconfig:"CLUBPAY_RESEND_API_KEY"`
	From       string `envconfig:"CLUBPAY_RESEND_FROM_EMAIL" default:"club@example.com"`
	AdminEmail string `envconfig:"CLUBPAY_NOTIFY_ADMIN_EMAIL"`
}

type LedgerConfig struct {
	AbandonAfter time.Duration `envconfig:"CLUBPAY_LEDGER_ABANDON_AFTER" default:"1h"`
}

type ClassifierConfig struct {
	Precedence         string `envconfig:"CLUBPAY_CLASSIFIER_PRECEDENCE" default:"invoice_first"`
	DefaultRenewalType string `envconfig:"CLUBPAY_CLASSIFIER_DEFAULT_RENEWAL_TYPE" default:"senior_player"`
}

func (c ClassifierConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Precedence)) {
	case PrecedenceInvoiceFirst, PrecedenceSubscriptionFirst:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvClassifierPrecedence, PrecedenceInvoiceFirst, PrecedenceSubscriptionFirst)
	}
}

type ReconcileConfig struct {
	MaxErrors int           `envconfig:"CLUBPAY_RECONCILE_MAX_ERRORS" default:"50"`
	Interval  time.Duration `envconfig:"CLUBPAY_RECONCILE_INTERVAL" default:"24h"`
	LockTTL   time.Duration `envconfig:"CLUBPAY_RECONCILE_LOCK_TTL" default:"2h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = DefaultSQLiteDSN
		}
		return nil
	}
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
