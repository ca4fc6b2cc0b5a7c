package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/freshcart-backend/pkg/config"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultTimeout = 20 * time.Second
	maxRetries     = 5
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client owns a Stripe API backend bound to one secret key. Resource clients
// are built from Backend and Key so nothing depends on the global stripe.Key.
type Client struct {
	environment   string
	apiKey        string
	signingSecret string
	backend       stripe.Backend
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig(cfg, logg))

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_env":     env,
			"stripe_retries": clampRetries(cfg.MaxNetworkRetries),
		})
		logg.Info(ctx, "stripe.client_ready")
	}

	return &Client{
		environment:   env,
		apiKey:        apiKey,
		signingSecret: signingSecret,
		backend:       backend,
	}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) Live() bool {
	return c.Environment() == liveEnv
}

// Backend is the HTTP backend shared by every resource client.
func (c *Client) Backend() stripe.Backend {
	if c == nil {
		return nil
	}
	return c.backend
}

// Key is the secret key resource clients authenticate with.
func (c *Client) Key() string {
	if c == nil {
		return ""
	}
	return c.apiKey
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// VerifyEvent checks the Stripe-Signature header against the signing secret
// and decodes the event envelope. Payload objects stay raw in event.Data.Raw.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func backendConfig(cfg config.StripeConfig, logg *logger.Logger) *stripe.BackendConfig {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(clampRetries(cfg.MaxNetworkRetries)),
		LeveledLogger:     leveledLogger{logg: logg},
	}
}

func clampRetries(n int64) int64 {
	switch {
	case n < 0:
		return 0
	case n > maxRetries:
		return maxRetries
	default:
		return n
	}
}

// leveledLogger routes stripe-go's own request logs into the service logger.
// Stripe's info level is per-request chatter, so it is demoted to debug.
type leveledLogger struct {
	logg *logger.Logger
}

var _ stripe.LeveledLoggerInterface = leveledLogger{}

func (l leveledLogger) Debugf(format string, v ...interface{}) {
	l.logg.Debug(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Infof(format string, v ...interface{}) {
	l.logg.Debug(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Warnf(format string, v ...interface{}) {
	l.logg.Warn(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Errorf(format string, v ...interface{}) {
	l.logg.Error(context.Background(), "stripe: "+fmt.Sprintf(format, v...), nil)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

// validateAPIKey accepts secret (sk_) and restricted (rk_) keys for the env.
func validateAPIKey(env, key string) error {
	for _, prefix := range []string{"sk_", "rk_"} {
		if strings.HasPrefix(key, prefix+env) {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a %s secret or restricted key", env, env)
}
