package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client *river.Client[pgx.Tx]
}

// NewRiverJobInserter creates a River-based job inserter.
func NewRiverJobInserter(client *river.Client[pgx.Tx]) *RiverJobInserter {
	return &RiverJobInserter{client: client}
}

// uniqueByArgs dedupes on the job args across all non-terminal states, so a
// scan (or reference) has at most one live job at a time.
// JobStatePending is required by River when using ByState.
var uniqueByArgs = river.UniqueOpts{
	ByArgs: true,
	ByState: []rivertype.JobState{
		rivertype.JobStatePending,
		rivertype.JobStateAvailable,
		rivertype.JobStateRunning,
		rivertype.JobStateRetryable,
		rivertype.JobStateScheduled,
	},
}

// InsertScanPipelineJob enqueues the identification pipeline for a scan.
func (r *RiverJobInserter) InsertScanPipelineJob(ctx context.Context, args ScanPipelineArgs) error {
	_, err := r.client.Insert(ctx, args, &river.InsertOpts{UniqueOpts: uniqueByArgs})
	if err != nil {
		return fmt.Errorf("insert scan pipeline job: %w", err)
	}

	return nil
}

// InsertReferenceEmbeddingJob enqueues an embedding computation for a strain reference.
func (r *RiverJobInserter) InsertReferenceEmbeddingJob(ctx context.Context, args ReferenceEmbeddingArgs) error {
	_, err := r.client.Insert(ctx, args, &river.InsertOpts{UniqueOpts: uniqueByArgs})
	if err != nil {
		return fmt.Errorf("insert reference embedding job: %w", err)
	}

	return nil
}
