package database

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"minisocial/internal/middleware"
)

type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var migrations []Migration

func init() {
	loaded, err := LoadMigrations(migrationFS, "migrations")
	if err != nil {
		fmt.Printf("failed to register internal migrations: %v\n", err)
		return
	}
	migrations = loaded
}

// LoadMigrations reads NNNNNN_name.up.sql / .down.sql pairs from dir, ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(name, ".up.sql")
		parts := strings.SplitN(base, "_", 2)
		if len(parts) != 2 {
			middleware.Logger.Warn("Skipping migration with invalid naming", slog.String("file", name))
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			middleware.Logger.Warn("Skipping migration with invalid version", slog.String("file", name))
			continue
		}

		upBytes, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read up migration %s: %w", name, err)
		}
		downName := base + ".down.sql"
		downBytes, err := fs.ReadFile(fsys, path.Join(dir, downName))
		if err != nil {
			return nil, fmt.Errorf("failed to read down migration %s: %w", downName, err)
		}

		out = append(out, Migration{
			Version:    version,
			Name:       parts[1],
			UpScript:   string(upBytes),
			DownScript: string(downBytes),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func GetMigrations() []Migration {
	return migrations
}

func GetMigrationByVersion(version int) *Migration {
	for i := range migrations {
		if migrations[i].Version == version {
			return &migrations[i]
		}
	}
	return nil
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}
