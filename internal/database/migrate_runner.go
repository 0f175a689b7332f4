package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"minisocial/internal/middleware"

	"gorm.io/gorm"
)

// MigrationLog records one applied SQL migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for MigrationLog.
func (MigrationLog) TableName() string {
	return "migration_logs"
}

const ensureMigrationLogTableSQL = `
CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// AppliedVersions lists recorded migration versions in ascending order.
func AppliedVersions(ctx context.Context, db *gorm.DB) ([]int, error) {
	if err := db.WithContext(ctx).Exec(ensureMigrationLogTableSQL).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure migration logs table: %w", err)
	}
	var versions []int
	if err := db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return versions, nil
}

// RunMigrations applies every pending migration, each in its own transaction
// together with its log row.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	if err := validateAppliedVersions(applied, migrations); err != nil {
		return err
	}

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		middleware.Logger.Info("Applying migration", slog.String("migration", m.String()))
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.UpScript).Error; err != nil {
				return err
			}
			return tx.Create(&MigrationLog{Version: m.Version, Name: m.Name}).Error
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.String(), err)
		}
	}
	return nil
}

// RollbackMigration reverts one applied migration by version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	if i := sort.SearchInts(applied, version); i == len(applied) || applied[i] != version {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	middleware.Logger.Info("Rolling back migration", slog.String("migration", m.String()))
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("failed to run rollback SQL for %s: %w", m.String(), err)
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
}

func validateAppliedVersions(applied []int, registered []Migration) error {
	known := make(map[int]struct{}, len(registered))
	for _, m := range registered {
		known[m.Version] = struct{}{}
	}

	var unknown []string
	for _, version := range applied {
		if _, ok := known[version]; !ok {
			unknown = append(unknown, fmt.Sprintf("%06d", version))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return fmt.Errorf("migration_logs contains unknown versions not present in code: %s", strings.Join(unknown, ", "))
}
