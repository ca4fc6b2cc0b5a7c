package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freshcart-backend/api/routes"
	"github.com/angelmondragon/freshcart-backend/internal/bootstrap"
	"github.com/angelmondragon/freshcart-backend/internal/webhooks"
	netswebhook "github.com/angelmondragon/freshcart-backend/internal/webhooks/nets"
	stripewebhook "github.com/angelmondragon/freshcart-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/migrate"
	"github.com/angelmondragon/freshcart-backend/pkg/redis"
)

const (
	stripeWebhookScope = "stripe-webhook"
	netsWebhookScope   = "nets-webhook"
	readHeaderTimeout  = 10 * time.Second
)

func main() {
	proc := bootstrap.Start("api")
	cfg, logg := proc.Config, proc.Logger

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	proc.Must("database", err)
	defer proc.Close("database", dbClient.Close)

	proc.Must("dev migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	proc.Must("redis", err)
	defer proc.Close("redis", redisClient.Close)

	commerce, err := bootstrap.NewCommerce(context.Background(), cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	proc.Must("checkout stack", err)

	deps := routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Products:      commerce.Products,
		Cart:          commerce.Cart,
		Checkout:      commerce.Checkout,
		Orders:        commerce.Orders,
		Refunds:       commerce.Refunds,
		Subscriptions: commerce.Subscriptions,
		StripeClient:  commerce.Stripe,
	}

	deps.StripeWebhook, err = stripewebhook.NewService(stripewebhook.ServiceParams{
		Checkout:      commerce.Checkout,
		Subscriptions: commerce.Subscriptions,
		Logger:        logg,
	})
	proc.Must("stripe webhook service", err)
	deps.StripeGuard, err = webhooks.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookReplayTTL, stripeWebhookScope)
	proc.Must("stripe webhook guard", err)

	if commerce.Nets != nil {
		deps.NetsClient = commerce.Nets
		deps.NetsWebhook, err = netswebhook.NewService(commerce.Checkout, logg)
		proc.Must("nets webhook service", err)
		deps.NetsGuard, err = webhooks.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookReplayTTL, netsWebhookScope)
		proc.Must("nets webhook guard", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": commerce.Stripe.Environment(),
		"nets_qr":    commerce.Nets != nil,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
