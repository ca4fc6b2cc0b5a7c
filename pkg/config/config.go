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
	Checkout     CheckoutConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	PayPal       PayPalConfig
	Nets         NetsConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FRESHCART_APP_ENV" required:"true"`
	Port         string   `envconfig:"FRESHCART_APP_PORT" required:"true"`
	BaseURL      string   `envconfig:"FRESHCART_APP_BASE_URL" default:"http://localhost:8080"`
	CORSOrigins  []string `envconfig:"FRESHCART_CORS_ORIGINS" default:"http://localhost:3000"`
	LogLevel     string   `envconfig:"FRESHCART_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"FRESHCART_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"FRESHCART_LOG_WARN_STACK" default:"false"`
	LogCaller    bool     `envconfig:"FRESHCART_LOG_CALLER" default:"false"`
	LogRedact    []string `envconfig:"FRESHCART_LOG_REDACT"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FRESHCART_SERVICE_KIND" default:"api"`
	// OpsAddr serves health and metrics for the background workers. Empty disables it.
	OpsAddr         string        `envconfig:"FRESHCART_OPS_ADDR"`
	ShutdownTimeout time.Duration `envconfig:"FRESHCART_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DBConfig struct {
	DSN    string `envconfig:"FRESHCART_DB_DSN"`
	Driver string `envconfig:"FRESHCART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FRESHCART_DB_HOST"`
	LegacyPort     int    `envconfig:"FRESHCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FRESHCART_DB_USER"`
	LegacyPassword string `envconfig:"FRESHCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"FRESHCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"FRESHCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FRESHCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FRESHCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FRESHCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FRESHCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	ConnectAttempts    uint64        `envconfig:"FRESHCART_DB_CONNECT_ATTEMPTS" default:"5"`
	TxRetries          uint64        `envconfig:"FRESHCART_DB_TX_RETRIES" default:"2"`
	SlowQueryThreshold time.Duration `envconfig:"FRESHCART_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

// IsSQLite reports whether the sqlite driver was requested (local development only).
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"FRESHCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FRESHCART_REDIS_ADDR"`
	Password     string        `envconfig:"FRESHCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"FRESHCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FRESHCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FRESHCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FRESHCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FRESHCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FRESHCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FRESHCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FRESHCART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FRESHCART_JWT_EXPIRATION_MINUTES" default:"60"`

	// PreviousSecret keeps tokens signed before a rotation valid until they expire.
	PreviousSecret string        `envconfig:"FRESHCART_JWT_PREVIOUS_SECRET"`
	Audience       string        `envconfig:"FRESHCART_JWT_AUDIENCE"`
	Leeway         time.Duration `envconfig:"FRESHCART_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate        bool `envconfig:"FRESHCART_AUTO_MIGRATE" default:"false"`
	CompensateOrphaned bool `envconfig:"FRESHCART_COMPENSATE_ORPHANED_CAPTURES" default:"true"`
	EnableNetsQR       bool `envconfig:"FRESHCART_FEATURE_NETS_QR" default:"true"`
	EnablePayPal       bool `envconfig:"FRESHCART_FEATURE_PAYPAL" default:"true"`
}

// CheckoutConfig drives cart, session and payment-session lifetimes.
type CheckoutConfig struct {
	Currency          string        `envconfig:"FRESHCART_CHECKOUT_CURRENCY" default:"SGD"`
	QRPollTimeout     time.Duration `envconfig:"FRESHCART_CHECKOUT_QR_TIMEOUT" default:"300s"`
	SessionRetention  time.Duration `envconfig:"FRESHCART_CHECKOUT_SESSION_RETENTION" default:"72h"`
	SessionCartTTL    time.Duration `envconfig:"FRESHCART_CHECKOUT_SESSION_CART_TTL" default:"168h"`
	ConfirmLockTTL    time.Duration `envconfig:"FRESHCART_CHECKOUT_CONFIRM_LOCK_TTL" default:"30s"`
	ProviderTimeout   time.Duration `envconfig:"FRESHCART_CHECKOUT_PROVIDER_TIMEOUT" default:"15s"`
	SubscriptionQty   int           `envconfig:"FRESHCART_SUBSCRIPTION_QTY" default:"2"`
	WebhookReplayTTL  time.Duration `envconfig:"FRESHCART_WEBHOOK_REPLAY_TTL" default:"720h"`
	HTTPIdempotencyOn bool          `envconfig:"FRESHCART_HTTP_IDEMPOTENCY" default:"true"`
	// Per-user cap on payment starts and confirms; 0 disables it.
	PaymentRateLimit  int64         `envconfig:"FRESHCART_CHECKOUT_PAYMENT_RATE_LIMIT" default:"10"`
	PaymentRateWindow time.Duration `envconfig:"FRESHCART_CHECKOUT_PAYMENT_RATE_WINDOW" default:"1m"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FRESHCART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FRESHCART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FRESHCART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FRESHCART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic         string `envconfig:"FRESHCART_PUBSUB_ORDERS_TOPIC" default:"fc-order-events"`
	OrdersSubscription  string `envconfig:"FRESHCART_PUBSUB_ORDERS_SUBSCRIPTION" default:"fc-order-events-analytics"`
	BillingTopic        string `envconfig:"FRESHCART_PUBSUB_BILLING_TOPIC" default:"fc-billing-events"`
	BillingSubscription string `envconfig:"FRESHCART_PUBSUB_BILLING_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"FRESHCART_BIGQUERY_DATASET" default:"freshcart"`
	OrdersTable  string `envconfig:"FRESHCART_BIGQUERY_ORDERS_TABLE" default:"order_events"`
	RefundsTable string `envconfig:"FRESHCART_BIGQUERY_REFUNDS_TABLE" default:"refund_events"`
	// CreateTables provisions missing tables (not the dataset) at startup.
	CreateTables bool `envconfig:"FRESHCART_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FRESHCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FRESHCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FRESHCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FRESHCART_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"FRESHCART_OUTBOX_DLQ_RETENTION" default:"2160h"`
	RetentionEvery time.Duration `envconfig:"FRESHCART_OUTBOX_RETENTION_EVERY" default:"1h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FRESHCART_CRON_INTERVAL" default:"5m"`
	LockKey  string        `envconfig:"FRESHCART_CRON_LOCK_KEY" default:"fc:cron:lock"`
	LockTTL  time.Duration `envconfig:"FRESHCART_CRON_LOCK_TTL" default:"10m"`
}

type StripeConfig struct {
	APIKey string `envconfig:"FRESHCART_STRIPE_API_KEY"`
	Secret string `envconfig:"FRESHCART_STRIPE_SECRET"`
	Env    string `envconfig:"FRESHCART_STRIPE_ENV" default:"test"`

	MaxNetworkRetries int64         `envconfig:"FRESHCART_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
	Timeout           time.Duration `envconfig:"FRESHCART_STRIPE_TIMEOUT" default:"20s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PayPalConfig struct {
	ClientID     string `envconfig:"FRESHCART_PAYPAL_CLIENT_ID"`
	ClientSecret string `envconfig:"FRESHCART_PAYPAL_CLIENT_SECRET"`
	Env          string `envconfig:"FRESHCART_PAYPAL_ENV" default:"sandbox"`
}

// IsLive reports whether PayPal calls should hit the live API base.
func (p PayPalConfig) IsLive() bool {
	return strings.EqualFold(strings.TrimSpace(p.Env), "live")
}

type NetsConfig struct {
	BaseURL       string `envconfig:"FRESHCART_NETS_BASE_URL" default:"https://sandbox.nets.openapipaas.com"`
	APIKey        string `envconfig:"FRESHCART_NETS_API_KEY"`
	ProjectID     string `envconfig:"FRESHCART_NETS_PROJECT_ID"`
	TxnID         string `envconfig:"FRESHCART_NETS_TXN_ID"`
	CourseInitID  string `envconfig:"FRESHCART_NETS_COURSE_INIT_ID"`
	WebhookSecret string `envconfig:"FRESHCART_NETS_WEBHOOK_SECRET"`
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
