package main

import (
	"context"
	"flag"
	"log"

	"shijian-backend/internal/config"
	"shijian-backend/internal/database"
	"shijian-backend/internal/importer"
	"shijian-backend/internal/logging"
	"shijian-backend/internal/repository"
	"shijian-backend/migrations"
)

func main() {
	cfg := config.LoadTools()
	dir := flag.String("dir", cfg.DataDir, "directory holding <朝代>-<题材>诗.txt files")
	dryRun := flag.Bool("dry-run", false, "parse files and report counts without writing")
	flag.Parse()

	if _, err := logging.Init(cfg); err != nil {
		log.Printf("✗ Log file unavailable, logging to stdout only: %v", err)
	}

	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	if err := database.RunMigrations(ctx, pool, migrations.FS); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}

	im := importer.New(repository.NewAuthorRepo(pool), repository.NewPoemRepo(pool), *dryRun)
	stats, err := im.ImportDir(ctx, *dir)
	if err != nil {
		log.Fatalf("✗ Import failed: %v", err)
	}

	mode := "imported"
	if *dryRun {
		mode = "would import"
	}
	log.Printf("✓ %s %d poems from %d files (%d duplicates, %d skipped lines, %d new authors)",
		mode, stats.Poems, stats.Files, stats.Duplicates, stats.Skipped, stats.AuthorsCreated)
}
