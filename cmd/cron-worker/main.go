package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freshcart-backend/api/controllers"
	"github.com/angelmondragon/freshcart-backend/internal/bootstrap"
	"github.com/angelmondragon/freshcart-backend/internal/cron"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/metrics"
	"github.com/angelmondragon/freshcart-backend/pkg/migrate"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/redis"
)

const qrSweepBatch = 100

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	proc.Must("database", err)
	defer proc.Close("database", dbClient.Close)

	proc.Must("dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	proc.Must("redis", err)
	defer proc.Close("redis", redisClient.Close)

	commerce, err := bootstrap.NewCommerce(ctx, cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	proc.Must("checkout stack", err)

	jobs := []cron.Job{}
	if commerce.Nets != nil {
		sweep, err := cron.NewQRSessionSweepJob(cron.QRSessionSweepJobParams{
			Logger:      logg,
			Sessions:    commerce.PaymentSessions,
			Checkout:    commerce.Checkout,
			PollTimeout: cfg.Checkout.QRPollTimeout,
			Retention:   cfg.Checkout.SessionRetention,
			Batch:       qrSweepBatch,
		})
		proc.Must("qr session sweep", err)
		jobs = append(jobs, sweep)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Repository:   commerce.Outbox,
		Retention:    cfg.Outbox.Retention,
		DeadLetters:  outbox.NewDLQRepository(dbClient.DB()),
		DLQRetention: cfg.Outbox.DLQRetention,
		Every:        cfg.Outbox.RetentionEvery,
	})
	proc.Must("outbox retention", err)
	jobs = append(jobs, retention)

	registry, err := cron.NewRegistry(jobs...)
	proc.Must("cron registry", err)

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	proc.Must("cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	proc.Must("cron service", err)

	checks := map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}
	if err := proc.Run(map[string]any{"jobs": len(jobs)}, checks, service.Run); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}
