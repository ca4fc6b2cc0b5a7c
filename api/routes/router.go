package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/freshcart-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/freshcart-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/freshcart-backend/api/controllers/orders"
	subscriptioncontrollers "github.com/angelmondragon/freshcart-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/freshcart-backend/api/controllers/webhooks"
	"github.com/angelmondragon/freshcart-backend/api/middleware"
	"github.com/angelmondragon/freshcart-backend/internal/cart"
	"github.com/angelmondragon/freshcart-backend/internal/checkout"
	"github.com/angelmondragon/freshcart-backend/internal/orders"
	product "github.com/angelmondragon/freshcart-backend/internal/products"
	"github.com/angelmondragon/freshcart-backend/internal/refunds"
	"github.com/angelmondragon/freshcart-backend/internal/subscriptions"
	"github.com/angelmondragon/freshcart-backend/internal/webhooks"
	netswebhook "github.com/angelmondragon/freshcart-backend/internal/webhooks/nets"
	stripewebhook "github.com/angelmondragon/freshcart-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/freshcart-backend/pkg/config"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/nets"
	pkgredis "github.com/angelmondragon/freshcart-backend/pkg/redis"
	"github.com/angelmondragon/freshcart-backend/pkg/stripe"
)

// Dependencies is everything the HTTP surface calls into. Webhook routes are
// only mounted when their service, verifier and guard are all present.
type Dependencies struct {
	DB    db.Pinger
	Redis *pkgredis.Client

	Products      product.Repository
	Cart          cart.Service
	Checkout      checkout.Service
	Orders        orders.Service
	Refunds       refunds.Service
	Subscriptions subscriptions.Service

	StripeClient  *stripe.Client
	StripeWebhook *stripewebhook.Service
	StripeGuard   *webhooks.IdempotencyGuard

	NetsClient  *nets.Client
	NetsWebhook *netswebhook.Service
	NetsGuard   *webhooks.IdempotencyGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	var idempotencyStore pkgredis.IdempotencyStore
	if cfg.Checkout.HTTPIdempotencyOn && deps.Redis != nil {
		idempotencyStore = deps.Redis
	}
	var limiter pkgredis.RateLimiter
	if deps.Redis != nil {
		limiter = deps.Redis
	}
	paymentLimit := middleware.RateLimit(limiter, "checkout_payment", cfg.Checkout.PaymentRateLimit, cfg.Checkout.PaymentRateWindow, logg)

	checkoutURLs := controllers.CheckoutURLs{
		SuccessURL: cfg.App.BaseURL + "/checkout/success?token=" + checkout.TokenPlaceholder,
		CancelURL:  cfg.App.BaseURL + "/checkout/cancel?token=" + checkout.TokenPlaceholder,
	}
	subscriptionURLs := subscriptioncontrollers.RedirectURLs{
		SuccessURL: cfg.App.BaseURL + "/subscription/success",
		CancelURL:  cfg.App.BaseURL + "/subscription/cancel",
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.StripeWebhook != nil && deps.StripeClient != nil && deps.StripeGuard != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeGuard, logg))
		}
		if deps.NetsWebhook != nil && deps.NetsClient != nil && deps.NetsGuard != nil {
			r.Post("/nets", webhookcontrollers.NetsWebhook(deps.NetsWebhook, deps.NetsClient, deps.NetsGuard, logg))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(deps.Products, logg))
		r.Get("/products/{productId}", controllers.GetProduct(deps.Products, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.Fetch(deps.Cart, logg))
				r.Delete("/", cartcontrollers.Clear(deps.Cart, logg))
				r.Put("/items", cartcontrollers.SetItem(deps.Cart, logg))
				r.Delete("/items/{productId}", cartcontrollers.RemoveItem(deps.Cart, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", controllers.CheckoutPlan(deps.Checkout, deps.Cart, logg))
				r.With(paymentLimit).Post("/payments", controllers.CheckoutStartPayment(deps.Checkout, deps.Cart, checkoutURLs, logg))
				r.With(paymentLimit).Post("/payments/{token}/confirm", controllers.CheckoutConfirmPayment(deps.Checkout, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
				r.Get("/{orderId}/invoice", ordercontrollers.Invoice(deps.Orders, logg))
				r.Post("/{orderId}/refunds", ordercontrollers.RequestRefund(deps.Refunds, logg))
				r.Get("/{orderId}/refunds", ordercontrollers.ListRefunds(deps.Refunds, logg))
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", subscriptioncontrollers.Start(deps.Subscriptions, subscriptionURLs, logg))
				r.Get("/me", subscriptioncontrollers.Get(deps.Subscriptions, logg))
				r.Post("/me/cancel", subscriptioncontrollers.Cancel(deps.Subscriptions, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))
				r.Get("/orders", controllers.AdminListOrders(deps.Orders, logg))
				r.Patch("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
				r.Get("/refunds", controllers.AdminListPendingRefunds(deps.Refunds, logg))
				r.Post("/refunds/{refundId}/approve", controllers.AdminApproveRefund(deps.Refunds, logg))
				r.Post("/refunds/{refundId}/deny", controllers.AdminDenyRefund(deps.Refunds, logg))
				r.Post("/products", controllers.AdminCreateProduct(deps.Products, logg))
				r.Delete("/products/{productId}", controllers.AdminArchiveProduct(deps.Products, logg))
			})
		})
	})

	return r
}
