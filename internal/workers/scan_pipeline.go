// Package workers provides the River job workers for the scan pipeline.
package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/strainlens/hub/internal/jobs"
	"github.com/strainlens/hub/internal/observability"
)

// pipelineRunner is the minimal interface the worker needs from the pipeline service.
type pipelineRunner interface {
	Run(ctx context.Context, scanID uuid.UUID) error
}

// ScanPipelineWorker runs the identification pipeline for one scan per job.
// Stage failures are terminal on the scan itself, so the worker only retries
// infrastructure errors (the pipeline could not load or persist the scan).
type ScanPipelineWorker struct {
	river.WorkerDefaults[jobs.ScanPipelineArgs]

	pipeline pipelineRunner
	logger   *slog.Logger
}

// NewScanPipelineWorker creates the worker. A nil logger falls back to slog.Default().
func NewScanPipelineWorker(pipeline pipelineRunner, logger *slog.Logger) *ScanPipelineWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &ScanPipelineWorker{pipeline: pipeline, logger: logger}
}

const scanPipelineTimeout = 2 * time.Minute

// Timeout limits one full pipeline run (three external model calls plus writes).
func (w *ScanPipelineWorker) Timeout(*river.Job[jobs.ScanPipelineArgs]) time.Duration {
	return scanPipelineTimeout
}

// Work runs the pipeline for the job's scan. The scan id goes onto the
// context so every log line of the run carries it.
func (w *ScanPipelineWorker) Work(ctx context.Context, job *river.Job[jobs.ScanPipelineArgs]) error {
	ctx = observability.WithScanID(ctx, job.Args.ScanID)

	w.logger.DebugContext(ctx, "scan pipeline job started",
		"job_id", job.ID,
		"attempt", job.Attempt,
	)

	err := w.pipeline.Run(ctx, job.Args.ScanID)
	if err == nil {
		return nil
	}

	if job.Attempt >= job.MaxAttempts {
		w.logger.ErrorContext(ctx, "scan pipeline failed (final attempt)",
			"job_id", job.ID,
			"error", err,
		)

		return nil
	}

	return err
}
