// Package bootstrap assembles the checkout stack shared by the API and the
// cron worker from already-connected infrastructure clients.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	"github.com/angelmondragon/freshcart-backend/internal/orders"
	"github.com/angelmondragon/freshcart-backend/internal/payments"
	"github.com/angelmondragon/freshcart-backend/internal/paymentsessions"
	product "github.com/angelmondragon/freshcart-backend/internal/products"
	"github.com/angelmondragon/freshcart-backend/internal/refunds"
	"github.com/angelmondragon/freshcart-backend/internal/stock"
	"github.com/angelmondragon/freshcart-backend/internal/subscriptions"
	"github.com/angelmondragon/freshcart-backend/internal/users"
	"github.com/angelmondragon/freshcart-backend/pkg/config"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/metrics"
	"github.com/angelmondragon/freshcart-backend/pkg/nets"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/redis"
	"github.com/angelmondragon/freshcart-backend/pkg/stripe"
)

const refundLockScope = "refund"

// Commerce is the wired domain layer.
type Commerce struct {
	Products        product.Repository
	Cart            cart.Service
	Checkout        checkout.Service
	Orders          orders.Service
	Refunds         refunds.Service
	Subscriptions   subscriptions.Service
	PaymentSessions paymentsessions.Service
	Outbox          *outbox.Repository

	Stripe *stripe.Client
	// Nets is nil when the QR rail is disabled.
	Nets *nets.Client
}

// NewCommerce builds every rail enabled in cfg and the services on top of
// them. Card payments are always on; PayPal and NETS QR follow feature flags.
func NewCommerce(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*Commerce, error) {
	gdb := dbClient.DB()
	currency := cfg.Checkout.Currency
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	cardRail, err := payments.NewCardRail(payments.NewStripeAPI(stripeClient), currency)
	if err != nil {
		return nil, err
	}
	rails := []payments.Rail{cardRail}

	if cfg.FeatureFlags.EnablePayPal {
		api, err := payments.NewPayPalAPI(cfg.PayPal)
		if err != nil {
			return nil, err
		}
		walletRail, err := payments.NewWalletRail(api, currency)
		if err != nil {
			return nil, err
		}
		rails = append(rails, walletRail)
	}

	var netsClient *nets.Client
	if cfg.FeatureFlags.EnableNetsQR {
		netsClient, err = nets.NewClient(cfg.Nets, nets.WithHTTPClient(&http.Client{Timeout: cfg.Checkout.ProviderTimeout}))
		if err != nil {
			return nil, fmt.Errorf("nets client: %w", err)
		}
		qrRail, err := payments.NewQRRail(netsClient, currency, cfg.Checkout.QRPollTimeout)
		if err != nil {
			return nil, err
		}
		rails = append(rails, qrRail)
	}
	railRegistry := payments.NewRegistry(rails...)

	outboxRepo := outbox.NewRepository(gdb)
	emitter := outbox.NewService(outboxRepo, logg)
	products := product.NewRepository(gdb)
	ledger := stock.NewLedger(gdb)
	ordersRepo := orders.NewRepository(gdb)

	sessionCarts, err := cart.NewSessionStore(redisClient, cfg.Checkout.SessionCartTTL)
	if err != nil {
		return nil, err
	}
	durableCarts := cart.NewRepository(gdb)
	cartService, err := cart.NewService(sessionCarts, durableCarts, products, logg)
	if err != nil {
		return nil, err
	}

	sessions, err := paymentsessions.NewService(paymentsessions.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	confirmLock, err := paymentsessions.NewConfirmLock(redisClient, cfg.Checkout.ConfirmLockTTL)
	if err != nil {
		return nil, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:                 dbClient,
		Orders:             ordersRepo,
		Catalog:            products,
		Stock:              ledger,
		Rails:              railRegistry,
		Sessions:           sessions,
		Lock:               confirmLock,
		SessionCarts:       sessionCarts,
		DurableCarts:       durableCarts,
		Outbox:             emitter,
		Metrics:            checkoutMetrics,
		Logger:             logg,
		SessionTTL:         cfg.Checkout.SessionRetention,
		CompensateOrphaned: cfg.FeatureFlags.CompensateOrphaned,
	})
	if err != nil {
		return nil, err
	}

	ordersService, err := orders.NewService(ordersRepo, dbClient, emitter, currency, logg)
	if err != nil {
		return nil, err
	}

	refundLock, err := paymentsessions.NewKeyedLock(redisClient, refundLockScope, cfg.Checkout.ConfirmLockTTL)
	if err != nil {
		return nil, err
	}
	refundService, err := refunds.NewService(refunds.ServiceParams{
		Repo:    refunds.NewRepository(gdb),
		Orders:  ordersRepo,
		Tx:      dbClient,
		Rails:   railRegistry,
		Lock:    refundLock,
		Outbox:  emitter,
		Metrics: checkoutMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:     subscriptions.NewRepository(gdb),
		Tx:       dbClient,
		Catalog:  products,
		Stock:    ledger,
		Orders:   checkoutService,
		Rail:     cardRail,
		Users:    users.NewRepository(gdb),
		Outbox:   emitter,
		Metrics:  checkoutMetrics,
		Logger:   logg,
		Quantity: cfg.Checkout.SubscriptionQty,
	})
	if err != nil {
		return nil, err
	}

	return &Commerce{
		Products:        product.NewCoalescedRepository(products),
		Cart:            cartService,
		Checkout:        checkoutService,
		Orders:          ordersService,
		Refunds:         refundService,
		Subscriptions:   subscriptionService,
		PaymentSessions: sessions,
		Outbox:          outboxRepo,
		Stripe:          stripeClient,
		Nets:            netsClient,
	}, nil
}
