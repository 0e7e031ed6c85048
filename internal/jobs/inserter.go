package jobs

import (
	"context"
)

// JobInserter enqueues pipeline jobs. Services depend on this interface so
// they never see River directly.
type JobInserter interface {
	// InsertScanPipelineJob enqueues the identification pipeline for a scan.
	InsertScanPipelineJob(ctx context.Context, args ScanPipelineArgs) error

	// InsertReferenceEmbeddingJob enqueues an embedding computation for a
	// strain reference image.
	InsertReferenceEmbeddingJob(ctx context.Context, args ReferenceEmbeddingArgs) error
}
