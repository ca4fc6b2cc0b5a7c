package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/freshcart-backend/api/controllers"
	"github.com/angelmondragon/freshcart-backend/internal/analytics/router"
	"github.com/angelmondragon/freshcart-backend/internal/analytics/types"
	"github.com/angelmondragon/freshcart-backend/internal/analytics/worker"
	"github.com/angelmondragon/freshcart-backend/internal/analytics/writer"
	"github.com/angelmondragon/freshcart-backend/internal/bootstrap"
	"github.com/angelmondragon/freshcart-backend/pkg/bigquery"
	"github.com/angelmondragon/freshcart-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/freshcart-backend/pkg/pubsub"
	"github.com/angelmondragon/freshcart-backend/pkg/redis"
)

func main() {
	proc := bootstrap.Start("analytics-worker")
	cfg, logg := proc.Config, proc.Logger
	ctx := context.Background()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	proc.Must("redis", err)
	defer proc.Close("redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Must("pubsub", err)
	defer proc.Close("pubsub", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg,
		bigquery.Table{Name: cfg.BigQuery.OrdersTable, Schema: types.OrderEventSchema(), PartitionField: types.PartitionField},
		bigquery.Table{Name: cfg.BigQuery.RefundsTable, Schema: types.RefundEventSchema(), PartitionField: types.PartitionField},
	)
	proc.Must("bigquery", err)
	defer proc.Close("bigquery", bqClient.Close)

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		proc.Must("orders subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	proc.Must("idempotency manager", err)

	facts, err := writer.New(bqClient, writer.Config{
		OrdersTable:  cfg.BigQuery.OrdersTable,
		RefundsTable: cfg.BigQuery.RefundsTable,
	})
	proc.Must("analytics writer", err)
	defer proc.Close("analytics writer", func() error { return facts.Flush(ctx) })

	routes, err := router.NewRouter(facts, logg, nil)
	proc.Must("analytics router", err)

	service, err := worker.NewService(subscription, routes, manager, logg)
	proc.Must("analytics worker", err)

	checks := map[string]controllers.Pinger{"redis": redisClient, "pubsub": pubsubClient, "bigquery": bqClient}
	if err := proc.Run(map[string]any{"subscription": cfg.PubSub.OrdersSubscription}, checks, service.Run); err != nil {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
}
