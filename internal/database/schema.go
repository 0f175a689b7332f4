package database

import (
	"context"
	"fmt"
	"log/slog"

	"minisocial/internal/config"
	"minisocial/internal/middleware"

	"gorm.io/gorm"
)

// Schema strategies for the relational store.
const (
	SchemaModeSQL  = "sql"
	SchemaModeAuto = "auto"
)

// SchemaMode picks how the relational schema is managed: embedded SQL
// migrations for postgres in production, AutoMigrate everywhere else.
func SchemaMode(cfg *config.Config) string {
	if cfg.StoreDriver == config.StorePostgres && cfg.IsProduction() {
		return SchemaModeSQL
	}
	return SchemaModeAuto
}

// ApplySchema brings the relational schema up to date.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	mode := SchemaMode(cfg)
	middleware.Logger.Info("Applying schema", slog.String("mode", mode), slog.String("driver", cfg.StoreDriver))

	switch mode {
	case SchemaModeSQL:
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	default:
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}
