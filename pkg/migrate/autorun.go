package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/freshcart-backend/pkg/config"
	"github.com/angelmondragon/freshcart-backend/pkg/db"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when running in dev with
// FRESHCART_AUTO_MIGRATE on. Other environments migrate through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "skipping goose migrations on sqlite; schema is postgres-only")
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	migrator, err := NewMigrator(sqlDB, Embedded())
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	steps, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	for _, step := range steps {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":  step.Version,
			"duration": step.Duration.String(),
		}), "migration applied")
	}
	logg.Info(ctx, fmt.Sprintf("schema up to date (%d applied)", len(steps)))
	return nil
}
