// Package main is a diagnostic tool for database connectivity. It connects
// with the server's configuration, prints the schema migration version and a
// row count per table, and exits non-zero on any failure so it can gate
// deployments in CI/CD pipelines.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("=== SCHEMA ===\nversion: %d (dirty: %v)\n", version, dirty)
	if dirty {
		log.Fatal("schema is dirty; fix the failed migration before deploying")
	}

	fmt.Println("\n=== ROWS ===")
	for _, table := range db.Tables {
		var count int64
		// #nosec G202 -- table names come from the fixed db.Tables list.
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			log.Fatalf("Count %s failed: %v", table, err)
		}
		fmt.Printf("%-26s %d\n", table, count)
	}
}
