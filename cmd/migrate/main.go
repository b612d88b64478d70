package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"powersvc/adapters/store"
	"powersvc/internal/migration"
)

func main() {
	_ = godotenv.Load()

	driver := os.Getenv("LEDGER_DRIVER")
	url := os.Getenv("DATABASE_URL")
	if len(os.Args) == 3 {
		driver, url = os.Args[1], os.Args[2]
	}
	if driver == "" || url == "" {
		log.Fatal("Usage: migrate <postgres|sqlite> <database_url> (or set LEDGER_DRIVER and DATABASE_URL)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log.Printf("Migrating %s run ledger", driver)

	// Open applies the schema
	db, err := store.Open(ctx, driver, url)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	defer db.Close()

	versions, err := migration.AppliedVersions(ctx, db)
	if err != nil {
		log.Fatalf("Failed to read schema versions: %v", err)
	}
	log.Printf("Run ledger schema at %v", versions)
}
