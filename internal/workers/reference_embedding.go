package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/strainlens/hub/internal/jobs"
	"github.com/strainlens/hub/internal/scanerrors"
	"github.com/strainlens/hub/internal/service"
)

// referenceEmbeddingStore persists backfilled reference embeddings.
type referenceEmbeddingStore interface {
	SetReferenceEmbedding(ctx context.Context, referenceID uuid.UUID, embedding []float32) error
}

// ReferenceEmbeddingWorker computes and stores the embedding for one strain
// reference image. Used by the backfill command for references written before
// embeddings were enabled.
type ReferenceEmbeddingWorker struct {
	river.WorkerDefaults[jobs.ReferenceEmbeddingArgs]

	embedder service.ImageEmbedder
	store    referenceEmbeddingStore
	logger   *slog.Logger
}

// NewReferenceEmbeddingWorker creates the worker. A nil logger falls back to slog.Default().
func NewReferenceEmbeddingWorker(
	embedder service.ImageEmbedder,
	store referenceEmbeddingStore,
	logger *slog.Logger,
) *ReferenceEmbeddingWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReferenceEmbeddingWorker{embedder: embedder, store: store, logger: logger}
}

const referenceEmbeddingTimeout = 30 * time.Second

// Timeout limits one embedding call plus the write.
func (w *ReferenceEmbeddingWorker) Timeout(*river.Job[jobs.ReferenceEmbeddingArgs]) time.Duration {
	return referenceEmbeddingTimeout
}

// Work embeds the reference image and stores the result. A reference deleted
// since enqueue completes the job without retrying.
func (w *ReferenceEmbeddingWorker) Work(ctx context.Context, job *river.Job[jobs.ReferenceEmbeddingArgs]) error {
	args := job.Args

	embedding, err := w.embedder.EmbedImage(ctx, args.ImageRef)
	if err != nil {
		if job.Attempt >= job.MaxAttempts {
			w.logger.ErrorContext(ctx, "reference embedding failed (final attempt)",
				"reference_id", args.ReferenceID,
				"strain_id", args.StrainID,
				"error", err,
			)

			return nil
		}

		return fmt.Errorf("embed reference image: %w", err)
	}

	if err := w.store.SetReferenceEmbedding(ctx, args.ReferenceID, embedding); err != nil {
		var notFound *scanerrors.NotFoundError
		if errors.As(err, &notFound) {
			w.logger.InfoContext(ctx, "reference deleted before embedding stored",
				"reference_id", args.ReferenceID,
			)

			return nil
		}

		return fmt.Errorf("set reference embedding: %w", err)
	}

	w.logger.InfoContext(ctx, "reference embedding stored",
		"reference_id", args.ReferenceID,
		"strain_id", args.StrainID,
	)

	return nil
}
