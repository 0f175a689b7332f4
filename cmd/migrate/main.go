// Command migrate runs schema operations for the relational post store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"minisocial/internal/config"
	"minisocial/internal/database"
	"minisocial/internal/middleware"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate/main.go <up|auto|status|down> [version]")
}

func run() error {
	_ = godotenv.Load()
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StoreDriver == config.StoreMongo {
		return fmt.Errorf("STORE_DRIVER=mongo has no relational schema; indexes are created on connect")
	}

	// Opened without ApplySchema so status and down see the schema as it is.
	dialector, err := database.Dialector(cfg)
	if err != nil {
		return err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: database.NewGormLogger(middleware.Logger)})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	switch cmd {
	case "up":
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		log.Println("sql migrations applied")
	case "auto":
		if err := db.WithContext(ctx).AutoMigrate(database.PersistentModels()...); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
		log.Println("automigrations applied")
	case "status":
		applied, err := database.AppliedVersions(ctx, db)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		done := make(map[int]bool, len(applied))
		for _, v := range applied {
			done[v] = true
		}
		pending := 0
		for _, m := range database.GetMigrations() {
			if !done[m.Version] {
				pending++
				log.Printf("pending: %s", m.String())
			}
		}
		log.Printf("mode=%s env=%s applied=%d pending=%d", database.SchemaMode(cfg), cfg.Env, len(applied), pending)
	case "down":
		if flag.NArg() < 2 {
			return fmt.Errorf("usage: go run ./cmd/migrate/main.go down <version>")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", flag.Arg(1), err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Printf("rolled back migration %d", version)
	default:
		return usage()
	}

	return nil
}
