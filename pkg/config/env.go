package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "CLUBPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:clubpay.db?_foreign_keys=on"

	PrecedenceInvoiceFirst      = "invoice_first"
	PrecedenceSubscriptionFirst = "subscription_first"
)

const (
	EnvAppEnv    = "CLUBPAY_APP_ENV"
	EnvPort      = "CLUBPAY_APP_PORT"
	EnvLogLevel  = "CLUBPAY_LOG_LEVEL"
	EnvLogFormat = "CLUBPAY_LOG_FORMAT"

	EnvDBDSN    = "CLUBPAY_DB_DSN"
	EnvDBDriver = "CLUBPAY_DB_DRIVER"
	EnvDBHost   = "CLUBPAY_DB_HOST"
	EnvDBUser   = "CLUBPAY_DB_USER"
	EnvDBName   = "CLUBPAY_DB_NAME"

	EnvRedisURL = "CLUBPAY_REDIS_URL"

	EnvJWTSecret  = "CLUBPAY_JWT_SECRET"
	EnvJWTIssuer  = "CLUBPAY_JWT_ISSUER"
	EnvJWTExpMins = "CLUBPAY_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "CLUBPAY_USE_SQLITE"

	EnvStripeAPIKey = "CLUBPAY_STRIPE_API_KEY"
	EnvStripeSecret = "CLUBPAY_STRIPE_SECRET"

	EnvLedgerAbandonAfter   = "CLUBPAY_LEDGER_ABANDON_AFTER"
	EnvClassifierPrecedence = "CLUBPAY_CLASSIFIER_PRECEDENCE"
	EnvReconcileMaxErrors   = "CLUBPAY_RECONCILE_MAX_ERRORS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
