package main

import (
	"context"
	"flag"
	"log"

	"shijian-backend/internal/config"
	"shijian-backend/internal/database"
	"shijian-backend/internal/logging"
	"shijian-backend/internal/repository"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report merges and roll them back")
	flag.Parse()

	cfg := config.LoadTools()
	if _, err := logging.Init(cfg); err != nil {
		log.Printf("✗ Log file unavailable, logging to stdout only: %v", err)
	}

	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	authors := repository.NewAuthorRepo(pool)

	names, err := authors.DuplicateNames(ctx)
	if err != nil {
		log.Fatalf("✗ Failed to list duplicate authors: %v", err)
	}
	if len(names) == 0 {
		log.Println("✓ No duplicate authors found")
		return
	}
	log.Printf("Found %d duplicated author names", len(names))

	var moved, dropped int64
	merged := 0
	for _, name := range names {
		res, err := authors.MergeByName(ctx, name, *dryRun)
		if err != nil {
			log.Printf("✗ %s: %v", name, err)
			continue
		}
		merged += len(res.RemovedID)
		moved += res.Moved
		dropped += res.Dropped
		log.Printf("  %s: kept %s, removed %d records, moved %d poems, dropped %d duplicate poems",
			name, res.KeptID, len(res.RemovedID), res.Moved, res.Dropped)
	}

	if *dryRun {
		log.Printf("✓ Dry run: would remove %d author records (%d poems moved, %d dropped)", merged, moved, dropped)
		return
	}
	log.Printf("✓ Removed %d author records (%d poems moved, %d dropped)", merged, moved, dropped)
}
