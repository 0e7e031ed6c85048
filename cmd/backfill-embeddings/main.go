// backfill-embeddings enqueues River embedding jobs for strain reference images
// whose embedding column is null (e.g. after a bulk import). Run this when the
// API server is not handling backfill (one-off or scheduled). Workers in the
// API process the jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/strainlens/hub/internal/jobs"
	"github.com/strainlens/hub/internal/repository"
	"github.com/strainlens/hub/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env for consistency with the main API server (godotenv.Load() there).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)

		return exitFailure
	}

	repo := repository.NewStrainsRepository(db)

	references, err := repo.ListReferencesMissingEmbedding(ctx)
	if err != nil {
		slog.Error("Failed to list references missing embeddings", "error", err)

		return exitFailure
	}

	inserter := jobs.NewRiverJobInserter(riverClient)

	enqueued := 0

	for _, ref := range references {
		err := inserter.InsertReferenceEmbeddingJob(ctx, jobs.ReferenceEmbeddingArgs{
			StrainID:    ref.StrainID,
			ReferenceID: ref.ID,
			ImageRef:    ref.ImageRef,
		})
		if err != nil {
			slog.Error("Failed to enqueue embedding job",
				"reference_id", ref.ID, "strain_id", ref.StrainID, "error", err)

			return exitFailure
		}

		enqueued++
	}

	slog.Info("Backfill complete", "enqueued", enqueued)

	fmt.Printf("Enqueued %d embedding job(s).\n", enqueued)

	return exitSuccess
}
