package config

const (
	EnvPrefix = "FRESHCART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "FRESHCART_APP_ENV"
	EnvPort     = "FRESHCART_APP_PORT"
	EnvBaseURL  = "FRESHCART_APP_BASE_URL"
	EnvLogLevel = "FRESHCART_LOG_LEVEL"

	EnvDBDSN    = "FRESHCART_DB_DSN"
	EnvDBDriver = "FRESHCART_DB_DRIVER"
	EnvDBHost   = "FRESHCART_DB_HOST"
	EnvDBUser   = "FRESHCART_DB_USER"
	EnvDBName   = "FRESHCART_DB_NAME"
	EnvDBPort   = "FRESHCART_DB_PORT"

	EnvRedisURL = "FRESHCART_REDIS_URL"

	EnvJWTSecret  = "FRESHCART_JWT_SECRET"
	EnvJWTIssuer  = "FRESHCART_JWT_ISSUER"
	EnvJWTExpMins = "FRESHCART_JWT_EXPIRATION_MINUTES"

	EnvQRTimeout = "FRESHCART_CHECKOUT_QR_TIMEOUT"

	EnvStripeAPIKey = "FRESHCART_STRIPE_API_KEY"
	EnvStripeSecret = "FRESHCART_STRIPE_SECRET"

	EnvPayPalClientID = "FRESHCART_PAYPAL_CLIENT_ID"
	EnvNetsAPIKey     = "FRESHCART_NETS_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
