// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/creator-rewards/internal/config"
	"github.com/creator-rewards/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		path   = flag.String("path", "migrations", "Path to migration files")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := run(cfg.Database.Postgres.PostgresURL(), *path, *action); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(databaseURL, migrationsPath, action string) error {
	switch action {
	case "up":
		log.Println("Running migrations...")
		if err := storage.RunMigrations(databaseURL, migrationsPath); err != nil {
			return err
		}
		log.Println("Migrations completed successfully")

	case "down":
		log.Println("Rolling back migration...")
		if err := storage.RollbackMigrations(databaseURL, migrationsPath); err != nil {
			return err
		}
		log.Println("Migration rolled back successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, migrationsPath)
		if err != nil {
			return err
		}
		log.Printf("Current migration version: %d (dirty: %v)", version, dirty)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
