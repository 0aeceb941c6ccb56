// seed-operator creates or resets an operator login for the web API.
//
// Usage: go run ./cmd/seed-operator <username> <password>
package main

import (
	"context"
	"log"
	"os"

	"enrollment-reconciler/internal/config"
	"enrollment-reconciler/internal/db"
	"enrollment-reconciler/internal/store"
)

func main() {
	if len(os.Args) != 3 {
		log.Fatalf("usage: seed-operator <username> <password>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Ledger.URL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	id, err := store.NewOperators(pool).Upsert(ctx, os.Args[1], os.Args[2])
	if err != nil {
		log.Fatalf("Failed to save operator: %v", err)
	}
	log.Printf("Operator %q saved (id %d).", os.Args[1], id)
}
