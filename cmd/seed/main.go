// Package main provides a CLI tool for seeding the catalog with generated
// records for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"recordshop/internal/config"
	"recordshop/internal/domain/records"
	"recordshop/internal/infrastructure/storage/postgres"
	"recordshop/pkg/logger"
)

func main() {
	count := flag.Int("count", 1000, "number of records to generate")
	seed := flag.Int64("seed", 1, "random seed; the same seed yields the same catalog")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	if cfg.AutoMigrate {
		if err := postgres.RunMigrations(ctx, cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatalw("failed to run migrations", "error", err)
		}
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	catalog := generateCatalog(*count, *seed)
	inserted, err := seedCatalog(ctx, postgres.NewTxManager(pool), catalog)
	if err != nil {
		log.Fatalw("failed to seed catalog", "error", err)
	}

	log.Infow("seeding completed",
		"generated", len(catalog),
		"inserted", inserted,
		"skipped", int64(len(catalog))-inserted,
	)
}

var seedColumns = []string{
	"id", "version", "created_at", "updated_at",
	"artist", "album", "price", "qty", "format", "category", "tracklist",
}

// seedCatalog inserts the catalog, skipping rows whose (artist, album,
// format) already exists, so the seeder can run repeatedly.
func seedCatalog(ctx context.Context, txManager *postgres.TxManager, catalog []*records.Record) (int64, error) {
	rows := make([][]any, 0, len(catalog))
	for _, r := range catalog {
		rows = append(rows, []any{
			r.ID, r.Version, r.CreatedAt, r.UpdatedAt,
			r.Artist, r.Album, r.Price, r.Qty, string(r.Format), string(r.Category), r.TrackList,
		})
	}

	inserted, err := postgres.NewBatchInserter(txManager).
		MergeFromSlice(ctx, "records", seedColumns, []string{"artist", "album", "format"}, rows)
	if err != nil {
		return 0, fmt.Errorf("seed records: %w", err)
	}
	return inserted, nil
}
