// Package jobs defines River job arguments and the inserter abstraction used
// to enqueue pipeline work.
package jobs

import "github.com/google/uuid"

// ScanPipelineArgs identifies the scan a pipeline job processes. The args are
// the uniqueness key: at most one live job per scan.
type ScanPipelineArgs struct {
	ScanID uuid.UUID `json:"scan_id"`
}

// Kind returns the job type identifier for River.
func (ScanPipelineArgs) Kind() string { return "scan_pipeline" }

// ReferenceEmbeddingArgs identifies a strain reference image whose embedding
// is missing (written before embeddings were enabled) and needs backfilling.
type ReferenceEmbeddingArgs struct {
	StrainID    uuid.UUID `json:"strain_id"`
	ReferenceID uuid.UUID `json:"reference_id"`
	ImageRef    string    `json:"image_ref"`
}

// Kind returns the job type identifier for River.
func (ReferenceEmbeddingArgs) Kind() string { return "reference_embedding" }
