package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/db"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup, but only in dev
// with the auto-migrate flag on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	migrations, err := Source("")
	if err != nil {
		return err
	}
	runner, err := NewRunner(sqlDB, migrations, logg)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "applying embedded migrations (dev auto-run)")
	return runner.Up(ctx)
}
