package admin

import (
	"context"
	"log/slog"

	"github.com/oceanco2/intake/api/config"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
)

// PgMigrateUp runs all pending PostgreSQL migrations
func PgMigrateUp(ctx context.Context, log *slog.Logger, cfg config.PgConfig) error {
	return statusstore.Up(ctx, log, cfg.ConnString())
}

// PgMigrateDown rolls back the last PostgreSQL migration
func PgMigrateDown(ctx context.Context, log *slog.Logger, cfg config.PgConfig) error {
	return statusstore.Down(ctx, log, cfg.ConnString())
}

// PgMigrateStatus shows the status of all PostgreSQL migrations
func PgMigrateStatus(ctx context.Context, log *slog.Logger, cfg config.PgConfig) error {
	return statusstore.MigrationStatus(ctx, log, cfg.ConnString())
}
