package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freshcart-backend/api/controllers"
	"github.com/angelmondragon/freshcart-backend/internal/bootstrap"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/metrics"
	"github.com/angelmondragon/freshcart-backend/pkg/migrate"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/registry"
	"github.com/angelmondragon/freshcart-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	proc.Must("database", err)
	defer proc.Close("database", dbClient.Close)

	proc.Must("dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Must("pubsub", err)
	defer proc.Close("pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must("event registry", err)

	service, err := NewService(ServiceParams{
		Config:        cfg.Outbox,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must("outbox publisher", err)

	checks := map[string]controllers.Pinger{"db": dbClient, "pubsub": pubsubClient}
	if err := proc.Run(map[string]any{"batch_size": cfg.Outbox.BatchSize}, checks, service.Run); err != nil {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
}
